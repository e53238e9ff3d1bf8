// Package logger expone un logger Zap singleton con scoping por contexto.
//
//   - Singleton: una sola instancia inicializada con Init().
//   - Scoping: cada request lleva su propio logger con request_id, client_ip y
//     account_id, inyectado por el middleware de logging.
//   - Entornos: "dev" escribe consola con colores, "prod" escribe JSON.
//   - Archivo opcional con rotación (lumberjack) cuando Config.File está seteado.
//
// Inicialización (una vez en main.go):
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
//	defer logger.Sync()
//
// En services:
//
//	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("totp.enable"))
package logger
