package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cl := &client{
		BaseURL:   envOr("LEXGUARD_URL", "http://localhost:8080"),
		Cookie:    envOr("LEXGUARD_SESSION", ""),
		OutFormat: envOr("LEXGUARD_OUT", "text"),
	}
	timeout := 30 * time.Second

	root := &cobra.Command{
		Use:           "lexguardctl",
		Short:         "CLI operativa para LexGuard",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cl.HTTP = newHTTPClient(timeout)
			cl.Out = cmd.OutOrStdout()
		},
	}
	root.PersistentFlags().StringVar(&cl.BaseURL, "url", cl.BaseURL, "URL base de la API (env LEXGUARD_URL)")
	root.PersistentFlags().StringVar(&cl.Cookie, "cookie", cl.Cookie, "Valor de la cookie de sesión (env LEXGUARD_SESSION)")
	root.PersistentFlags().StringVar(&cl.CookieName, "cookie-name", "sid", "Nombre de la cookie de sesión")
	root.PersistentFlags().StringVar(&cl.OutFormat, "out", cl.OutFormat, "Formato de salida: json|text")
	root.PersistentFlags().DurationVar(&timeout, "timeout", timeout, "Timeout de cada request")

	root.AddCommand(newLoginCmd(cl))
	root.AddCommand(newAuditCmd(cl))
	root.AddCommand(newHashPasswordCmd())
	root.AddCommand(newTOTPCodeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newGenKeyCmd())
	return root
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
