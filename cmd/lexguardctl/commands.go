package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	admindto "github.com/dropDatabas3/lexguard/internal/http/dto/admin"
	authdto "github.com/dropDatabas3/lexguard/internal/http/dto/auth"
	"github.com/dropDatabas3/lexguard/internal/security/password"
	"github.com/dropDatabas3/lexguard/internal/security/totp"
)

// login: imprime la cookie de sesión para usar con --cookie.
func newLoginCmd(cl *client) *cobra.Command {
	var email, code string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Inicia sesión e imprime la cookie de sesión",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return errors.New("--email es requerido")
			}
			pwd, err := readSecret("Password: ")
			if err != nil {
				return err
			}
			resp, body, err := cl.do(http.MethodPost, "/login", authdto.LoginRequest{Email: email, Password: pwd, Code: code})
			if err != nil {
				return err
			}
			if resp.StatusCode == http.StatusUnauthorized {
				var mfa authdto.MFARequiredResponse
				if json.Unmarshal(body, &mfa) == nil && mfa.MFARequired {
					if code, err = prompt("Código 2FA: "); err != nil {
						return err
					}
					resp, body, err = cl.do(http.MethodPost, "/2fa/verify", authdto.LoginRequest{MFAToken: mfa.MFAToken, Code: code})
					if err != nil {
						return err
					}
				}
			}
			if resp.StatusCode != http.StatusOK {
				return apiError("login", resp.StatusCode, body)
			}
			for _, c := range resp.Cookies() {
				if c.Name == cl.CookieName {
					if cl.OutFormat == "json" {
						cl.print(resp.StatusCode, body)
					}
					fmt.Fprintln(cl.Out, c.Value)
					return nil
				}
			}
			return fmt.Errorf("login: la respuesta no trae la cookie %q", cl.CookieName)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email de la cuenta")
	cmd.Flags().StringVar(&code, "code", "", "Código TOTP o de respaldo (opcional, evita el prompt)")
	return cmd
}

// audit list: GET /admin/security-audit con la sesión de un admin.
func newAuditCmd(cl *client) *cobra.Command {
	auditCmd := &cobra.Command{Use: "audit", Short: "Consulta del log de auditoría"}

	var (
		eventType   string
		page, limit int
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Lista eventos de auditoría (requiere sesión admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cl.Cookie == "" {
				return errors.New("falta la sesión (flag --cookie o env LEXGUARD_SESSION)")
			}
			q := url.Values{}
			if eventType != "" {
				q.Set("eventType", strings.ToUpper(eventType))
			}
			q.Set("page", strconv.Itoa(page))
			q.Set("limit", strconv.Itoa(limit))

			resp, body, err := cl.do(http.MethodGet, "/admin/security-audit?"+q.Encode(), nil)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return apiError("audit list", resp.StatusCode, body)
			}
			if cl.OutFormat == "json" {
				cl.print(resp.StatusCode, body)
				return nil
			}
			var out admindto.AuditListResponse
			if err := json.Unmarshal(body, &out); err != nil {
				return fmt.Errorf("audit list: respuesta inválida: %w", err)
			}
			for _, e := range out.Entries {
				acc := "-"
				if e.AccountID != nil {
					acc = *e.AccountID
				}
				fmt.Fprintf(cl.Out, "%s  %-20s  %-15s  %s\n", e.Timestamp.Format(time.RFC3339), e.EventType, e.IP, acc)
			}
			p := out.Pagination
			fmt.Fprintf(cl.Out, "page %d/%d (total %d)\n", p.Page, p.TotalPages, p.Total)
			return nil
		},
	}
	listCmd.Flags().StringVar(&eventType, "event-type", "", "Filtrar por tipo (ej. LOGIN_FAILED)")
	listCmd.Flags().IntVar(&page, "page", 1, "Página (desde 1)")
	listCmd.Flags().IntVar(&limit, "limit", 20, "Entradas por página (máx 100)")

	auditCmd.AddCommand(listCmd)
	return auditCmd
}

// hash-password: genera un hash argon2id PHC para sembrar cuentas a mano.
func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Imprime el hash argon2id de un password",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var plain string
			if len(args) == 1 {
				plain = args[0]
			} else {
				var err error
				if plain, err = readSecret("Password: "); err != nil {
					return err
				}
			}
			if plain == "" {
				return errors.New("password vacío")
			}
			h, err := password.Hash(password.Default, plain)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}

// totp-code: código actual para un secreto base32 (debug de relojes).
func newTOTPCodeCmd() *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "totp-code",
		Short: "Calcula el código TOTP vigente para un secreto",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("--secret es requerido")
			}
			code, err := totp.GenerateCode(totp.DefaultConfig(), strings.ToUpper(strings.TrimSpace(secret)), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "Secreto base32")
	return cmd
}

// readSecret lee sin eco si stdin es una terminal.
func readSecret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, label)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return prompt("")
}

var stdin = bufio.NewReader(os.Stdin)

func prompt(label string) (string, error) {
	if label != "" {
		fmt.Fprint(os.Stderr, label)
	}
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
