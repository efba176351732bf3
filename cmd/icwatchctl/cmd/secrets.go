package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"filippo.io/age"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/icwatch/icwatch/internal/secrets"
)

func newSecretsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Encrypt config values with age",
	}

	cmd.AddCommand(newSecretsKeygenCmd())
	cmd.AddCommand(newSecretsEncryptCmd())
	cmd.AddCommand(newSecretsDecryptCmd())

	return cmd
}

func newSecretsKeygenCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new age keypair for config encryption",
		Long: `Generates an X25519 age identity, writes it to a key file and prints the
public key for 'icwatchctl secrets encrypt --recipient'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := age.GenerateX25519Identity()
			if err != nil {
				return fmt.Errorf("generate keypair: %w", err)
			}

			if output == "" {
				output = secrets.DefaultKeyPath()
			}
			if err := os.MkdirAll(filepath.Dir(output), 0o700); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}
			if _, err := os.Stat(output); err == nil {
				return fmt.Errorf("key file already exists: %s (remove it first to regenerate)", output)
			}

			content := fmt.Sprintf("# created: %s\n# public key: %s\n%s\n",
				time.Now().Format(time.RFC3339),
				identity.Recipient().String(),
				identity.String(),
			)
			if err := os.WriteFile(output, []byte(content), 0o600); err != nil {
				return fmt.Errorf("write key file: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Key file written to: %s\n", output)
			fmt.Fprintf(cmd.OutOrStdout(), "Public key: %s\n", identity.Recipient().String())
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default: ~/.config/icwatch/age.key)")
	return cmd
}

func newSecretsEncryptCmd() *cobra.Command {
	var recipientKey string

	cmd := &cobra.Command{
		Use:   "encrypt <value>",
		Short: "Encrypt a value for use in config files",
		Long: `Prints the ENC[...] form of a value, e.g. for keepalive.server.key or
alert.feishu.secret. Without --recipient the public key of the resolved
identity is used.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var recipient age.Recipient
			if recipientKey != "" {
				r, err := age.ParseX25519Recipient(recipientKey)
				if err != nil {
					return fmt.Errorf("parse recipient: %w", err)
				}
				recipient = r
			} else {
				ids, err := resolveIdentity()
				if err != nil {
					return err
				}
				x25519, ok := ids[0].(*age.X25519Identity)
				if !ok {
					return fmt.Errorf("key is not an X25519 identity; use --recipient")
				}
				recipient = x25519.Recipient()
			}

			encrypted, err := secrets.Encrypt(args[0], recipient)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), encrypted)
			return nil
		},
	}

	cmd.Flags().StringVar(&recipientKey, "recipient", "", "age public key (default: read from key file)")
	return cmd
}

func newSecretsDecryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt <encrypted-value>",
		Short: "Decrypt an ENC[...] value (for debugging)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := resolveIdentity()
			if err != nil {
				return err
			}
			plaintext, err := secrets.Decrypt(args[0], ids...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), plaintext)
			return nil
		},
	}
}

func resolveIdentity() ([]age.Identity, error) {
	ids, err := secrets.ResolveIdentity(viper.New())
	if errors.Is(err, secrets.ErrNoIdentity) {
		return nil, fmt.Errorf("no age identity found; run 'icwatchctl secrets keygen', or set %s or %s",
			secrets.EnvAgeKey, secrets.EnvAgeKeyFile)
	}
	return ids, err
}
