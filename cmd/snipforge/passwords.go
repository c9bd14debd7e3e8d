package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"

	"pkt.systems/kryptograf/keymgmt"
	"pkt.systems/pslog"
	"pkt.systems/snipforge/internal/appconfig"
	"pkt.systems/snipforge/internal/auth"
	"pkt.systems/snipforge/schema"
)

const defaultPasswordLength = 20

func newPasswordsCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "passwords",
		Short: "Manage workshop passwords",
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")

	cmd.AddCommand(newPasswordsListCmd(&cfgPath))
	cmd.AddCommand(newPasswordsAddCmd(&cfgPath))
	cmd.AddCommand(newPasswordsDisableCmd(&cfgPath, true))
	cmd.AddCommand(newPasswordsDisableCmd(&cfgPath, false))
	cmd.AddCommand(newPasswordsRemoveCmd(&cfgPath))

	return cmd
}

func openPasswordStore(cmd *cobra.Command, cfgPath string) (appconfig.Config, *auth.Store, error) {
	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		return appconfig.Config{}, nil, err
	}
	store, err := auth.NewStore(cfg.Auth.PasswordFile, pslog.Ctx(cmd.Context()))
	if err != nil {
		return appconfig.Config{}, nil, err
	}
	return cfg, store, nil
}

func newPasswordsListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workshop passwords",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openPasswordStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			entries, err := store.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, entry := range entries {
				state := "active"
				if entry.Disabled {
					state = "disabled"
				} else if entry.Expired(time.Now()) {
					state = "expired"
				}
				expires := "-"
				if entry.ExpiresAt != nil {
					expires = entry.ExpiresAt.Format(time.RFC3339)
				}
				_, _ = fmt.Fprintf(out, "%s\t%s\t%s\t%s\texpires=%s\n", entry.ID, entry.Label, entry.Mode, state, expires)
			}
			return nil
		},
	}
}

func newPasswordsAddCmd(cfgPath *string) *cobra.Command {
	var rotating bool
	var passwordFromStdin bool
	var autoPassword bool
	var expiresIn time.Duration
	cmd := &cobra.Command{
		Use:   "add <label>",
		Short: "Add a workshop password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			label := strings.TrimSpace(args[0])
			if label == "" {
				return errors.New("label is required")
			}
			cfg, store, err := openPasswordStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			var expiresAt *time.Time
			if expiresIn > 0 {
				at := time.Now().Add(expiresIn)
				expiresAt = &at
			}
			out := cmd.OutOrStdout()
			if rotating {
				entry, err := store.AddRotating(label, cfg.Auth.TOTPIssuer, expiresAt)
				if err != nil {
					return err
				}
				printPasswordEnrollment(out, entry, "", false, otpauthURL(cfg.Auth.TOTPIssuer, label, entry.Secret))
				printJoinURL(out, cfg)
				return nil
			}
			password, generated, err := resolvePassword(cmd, passwordFromStdin, autoPassword)
			if err != nil {
				return err
			}
			entry, err := store.AddStatic(label, password, expiresAt)
			if err != nil {
				return err
			}
			printPasswordEnrollment(out, entry, password, generated, "")
			printJoinURL(out, cfg)
			return nil
		},
	}
	cmd.Flags().BoolVar(&rotating, "rotating", false, "use a rotating TOTP password instead of a static one")
	cmd.Flags().BoolVar(&passwordFromStdin, "password-from-stdin", false, "read password from stdin")
	cmd.Flags().BoolVar(&autoPassword, "auto-password", false, "generate a random password")
	cmd.Flags().DurationVar(&expiresIn, "expires", 0, "expire the password after this duration (e.g. 168h)")
	return cmd
}

func newPasswordsDisableCmd(cfgPath *string, disable bool) *cobra.Command {
	use, short := "disable <id>", "Disable a workshop password"
	if !disable {
		use, short = "enable <id>", "Re-enable a workshop password"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openPasswordStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			id := schema.PasswordID(args[0])
			if err := store.SetDisabled(id, disable); err != nil {
				return err
			}
			state := "disabled"
			if !disable {
				state = "enabled"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "password %s %s\n", id, state)
			return nil
		},
	}
}

func newPasswordsRemoveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a workshop password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openPasswordStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			id := schema.PasswordID(args[0])
			if err := store.Remove(id); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "password %s removed\n", id)
			return nil
		},
	}
}

func resolvePassword(cmd *cobra.Command, fromStdin, auto bool) (string, bool, error) {
	if fromStdin && auto {
		return "", false, errors.New("choose one of --password-from-stdin or --auto-password")
	}
	if fromStdin {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", false, err
		}
		pass := strings.TrimSpace(string(data))
		if pass == "" {
			return "", false, errors.New("password from stdin is empty")
		}
		return pass, false, nil
	}
	if auto {
		pass, err := generatePassword(defaultPasswordLength)
		if err != nil {
			return "", false, err
		}
		return pass, true, nil
	}
	passphrase, err := keymgmt.PromptPassphrase(cmd.InOrStdin(), "Password: ", cmd.ErrOrStderr())
	if err != nil {
		return "", false, err
	}
	confirm, err := keymgmt.PromptPassphrase(cmd.InOrStdin(), "Confirm password: ", cmd.ErrOrStderr())
	if err != nil {
		return "", false, err
	}
	if string(passphrase) != string(confirm) {
		return "", false, errors.New("passwords do not match")
	}
	pass := string(passphrase)
	if pass == "" {
		return "", false, errors.New("password is empty")
	}
	return pass, false, nil
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		length = defaultPasswordLength
	}
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	for i, b := range bytes {
		bytes[i] = charset[int(b)%len(charset)]
	}
	return string(bytes), nil
}

func otpauthURL(issuer, label, secret string) string {
	values := url.Values{}
	values.Set("secret", secret)
	values.Set("issuer", issuer)
	return fmt.Sprintf("otpauth://totp/%s:%s?%s",
		url.PathEscape(issuer), url.PathEscape(label), values.Encode())
}

func printPasswordEnrollment(w io.Writer, entry auth.Password, password string, showPassword bool, otpURL string) {
	_, _ = fmt.Fprintf(w, "id: %s\n", entry.ID)
	_, _ = fmt.Fprintf(w, "label: %s\n", entry.Label)
	_, _ = fmt.Fprintf(w, "mode: %s\n", entry.Mode)
	if showPassword && password != "" {
		_, _ = fmt.Fprintf(w, "password: %s\n", password)
	}
	if entry.Secret != "" {
		_, _ = fmt.Fprintf(w, "totp_secret: %s\n", entry.Secret)
	}
	if otpURL != "" {
		_, _ = fmt.Fprintf(w, "otpauth_url: %s\n", otpURL)
		_, _ = fmt.Fprintln(w, "totp_qr:")
		qrterminal.GenerateHalfBlock(otpURL, qrterminal.L, w)
	}
}

func printJoinURL(w io.Writer, cfg appconfig.Config) {
	base := strings.TrimSpace(cfg.HTTP.BaseURL)
	if base == "" {
		return
	}
	join := strings.TrimRight(base, "/") + "/"
	_, _ = fmt.Fprintf(w, "join_url: %s\n", join)
	_, _ = fmt.Fprintln(w, "join_qr:")
	qrterminal.GenerateHalfBlock(join, qrterminal.L, w)
}
