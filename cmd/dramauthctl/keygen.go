package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var keygenOut string

func init() {
	keygenCmd.Flags().StringVar(&keygenOut, "out", "jwt", "file prefix; writes PREFIX.key and PREFIX.pub")
	rootCmd.AddCommand(keygenCmd)
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an ed25519 key pair for session signing",
	Args:  cobra.NoArgs,
	// Runs before any config exists.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, _ []string) error {
		priv, pub, err := generateKeyPair()
		if err != nil {
			return err
		}
		if err := os.WriteFile(keygenOut+".key", priv, 0o600); err != nil {
			return err
		}
		if err := os.WriteFile(keygenOut+".pub", pub, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s.key and %s.pub\n", keygenOut, keygenOut)
		return nil
	},
}

// generateKeyPair returns PKCS#8 and PKIX PEM encodings of a new key.
func generateKeyPair() (privPEM, pubPEM []byte, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, nil, err
	}
	privPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privPEM, pubPEM, nil
}
