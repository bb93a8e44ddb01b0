package main

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/bruth/xapi"
	"github.com/bruth/xapi/internal/config"
)

// app holds the state shared by all commands once flags are parsed.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	endpoint   string
	logLevel   string

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		stdout: stdout,
		stderr: stderr,
	}

	root := &cobra.Command{
		Use:           "xapi",
		Short:         "Send, fetch and verify xAPI statements",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", os.Getenv("XAPI_CONFIG"), "path to config TOML")
	flags.StringVar(&a.endpoint, "endpoint", "", "record store endpoint, overrides the config")
	flags.StringVar(&a.logLevel, "log-level", "", "log level, overrides the config")

	root.AddCommand(
		a.aboutCmd(),
		a.getCmd(),
		a.sendCmd(),
		a.verifyCmd(),
		a.storeCmd(),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath, config.Default())
	if err != nil {
		return fmt.Errorf("load config %q: %w", a.configPath, err)
	}
	if a.endpoint != "" {
		cfg.Endpoint = a.endpoint
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg

	level, err := charmLog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("parse logging level %q: %w", cfg.Logging.Level, err)
	}
	handler := charmLog.NewWithOptions(a.stderr, charmLog.Options{
		Level:           level,
		Prefix:          "xapi",
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.TextFormatter,
	})
	a.logger = slog.New(handler)
	return nil
}

func (a *app) remote() (*xapi.RemoteLRS, error) {
	if a.cfg.Endpoint == "" {
		return nil, errors.New("no endpoint configured")
	}
	opts := append(a.cfg.Options(), xapi.WithLogger(a.logger))
	return xapi.NewRemoteLRS(a.cfg.Endpoint, opts...)
}

func (a *app) print(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.stdout, string(b))
	return err
}

func (a *app) aboutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "about",
		Short: "Show the versions the store supports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lrs, err := a.remote()
			if err != nil {
				return err
			}
			about, err := lrs.About(cmd.Context())
			if err != nil {
				return err
			}
			v, err := about.Negotiate()
			if err != nil {
				return err
			}
			a.logger.Info("negotiated version", "version", v)
			return a.print(about)
		},
	}
}

func (a *app) getCmd() *cobra.Command {
	var voided bool
	cmd := &cobra.Command{
		Use:   "get <statement-id>",
		Short: "Fetch a statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lrs, err := a.remote()
			if err != nil {
				return err
			}
			var s *xapi.Statement
			if voided {
				s, err = lrs.RetrieveVoidedStatement(cmd.Context(), args[0])
			} else {
				s, err = lrs.RetrieveStatement(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			return a.print(s)
		},
	}
	cmd.Flags().BoolVar(&voided, "voided", false, "fetch a voided statement")
	return cmd
}

func (a *app) sendCmd() *cobra.Command {
	var keyPath string
	cmd := &cobra.Command{
		Use:   "send <file>",
		Short: "Send the statement or statements in a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stmts, err := readStatements(args[0])
			if err != nil {
				return err
			}
			if keyPath != "" {
				key, err := readSigner(keyPath)
				if err != nil {
					return err
				}
				v := xapi.Version(a.cfg.Version)
				for _, s := range stmts {
					if err := s.Sign(key, v); err != nil {
						return err
					}
				}
			}

			lrs, err := a.remote()
			if err != nil {
				return err
			}
			stmts, err = lrs.SaveStatements(cmd.Context(), stmts)
			if err != nil {
				return err
			}
			for _, s := range stmts {
				fmt.Fprintln(a.stdout, s.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&keyPath, "key", "", "PEM private key to sign the statements with")
	return cmd
}

func (a *app) verifyCmd() *cobra.Command {
	var keyPath string
	cmd := &cobra.Command{
		Use:   "verify <statement-id>",
		Short: "Fetch a signed statement and verify its signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []xapi.VerifyOption
			if keyPath != "" {
				pub, err := readPublicKey(keyPath)
				if err != nil {
					return err
				}
				opts = append(opts, xapi.VerifyKey(pub))
			}

			lrs, err := a.remote()
			if err != nil {
				return err
			}
			s, err := lrs.RetrieveStatement(cmd.Context(), args[0], xapi.WithAttachments())
			if err != nil {
				return err
			}
			res, err := s.Verify(opts...)
			if err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("signature does not match: %s", res.Reason)
			}
			fmt.Fprintln(a.stdout, "ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&keyPath, "key", "", "PEM public key or certificate; defaults to the x5c header")
	return cmd
}

func (a *app) storeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Work with the NATS statement store",
	}

	open := func() (*xapi.Store, func(), error) {
		nc, err := nats.Connect(a.cfg.Store.URL)
		if err != nil {
			return nil, nil, err
		}
		s, err := xapi.NewStore(nc, a.cfg.Store.Name,
			xapi.StoreCodec(a.cfg.Store.Codec),
			xapi.StoreVersion(xapi.Version(a.cfg.Version)),
			xapi.StoreLogger(a.logger),
		)
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		return s, nc.Close, nil
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create the store's stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := open()
			if err != nil {
				return err
			}
			defer done()
			return s.Create(&xapi.StoreConfig{Storage: nats.FileStorage})
		},
	}

	save := &cobra.Command{
		Use:   "save <file>",
		Short: "Store the statement or statements in a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stmts, err := readStatements(args[0])
			if err != nil {
				return err
			}
			s, done, err := open()
			if err != nil {
				return err
			}
			defer done()
			for _, st := range stmts {
				if _, err := s.SaveStatement(cmd.Context(), st); err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, st.ID)
			}
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get <statement-id>",
		Short: "Fetch a stored statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := open()
			if err != nil {
				return err
			}
			defer done()
			st, err := s.RetrieveStatement(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(st)
		},
	}

	cmd.AddCommand(create, save, get)
	return cmd
}

// readStatements reads a single statement or an array of statements.
func readStatements(path string) ([]*xapi.Statement, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var stmts []*xapi.Statement
		if err := json.Unmarshal(b, &stmts); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return stmts, nil
	}
	var s xapi.Statement
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return []*xapi.Statement{&s}, nil
}

func readPEM(path string) (*pem.Block, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, fmt.Errorf("%s: no PEM block", path)
	}
	return block, nil
}

func readSigner(path string) (crypto.Signer, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	var key any
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%s: %T cannot sign", path, key)
	}
	return signer, nil
}

func readPublicKey(path string) (crypto.PublicKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	if block.Type == "CERTIFICATE" {
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return cert.PublicKey, nil
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pub, nil
}
