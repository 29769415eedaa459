// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"github.com/z5labs/capsule/gemini"

	"github.com/spf13/cobra"
)

func newCertCommand() *cobra.Command {
	var (
		hostname string
		certFile string
		keyFile  string
		validity time.Duration
	)

	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Write a self-signed certificate and key for the capsule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cert, err := gemini.SelfSignedCertificate(hostname, validity)
			if err != nil {
				return err
			}
			err = writeKeyPair(cert, certFile, keyFile)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s for %s\n", certFile, keyFile, hostname)
			return nil
		},
	}
	cmd.Flags().StringVar(&hostname, "hostname", "localhost", "name the certificate is issued for")
	cmd.Flags().StringVar(&certFile, "cert", "cert.pem", "where to write the PEM certificate")
	cmd.Flags().StringVar(&keyFile, "key", "key.pem", "where to write the PEM private key")
	cmd.Flags().DurationVar(&validity, "validity", 365*24*time.Hour, "how long the certificate is valid for")

	return cmd
}

func writeKeyPair(cert tls.Certificate, certFile, keyFile string) error {
	keyDER, err := x509.MarshalPKCS8PrivateKey(cert.PrivateKey)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]})
	err = os.WriteFile(certFile, certPEM, 0o644)
	if err != nil {
		return err
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	return os.WriteFile(keyFile, keyPEM, 0o600)
}
