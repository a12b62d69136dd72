package main

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"hive/internal/client"
	"hive/internal/utils"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type globalFlags struct {
	addr      string
	tenant    string
	tokenFile string
	logLevel  string
}

// NewRootCommand builds the hivectl command tree.
func NewRootCommand() *cobra.Command {
	var g globalFlags
	root := &cobra.Command{
		Use:          "hivectl",
		Short:        "List and export users, roles and permissions from a hive server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := utils.NewLogger(g.logLevel, "console")
			if err != nil {
				return err
			}
			utils.SetLogger(logger)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&g.addr, "addr", envOr("HIVE_ADDR", "http://localhost:8080"), "Server address.")
	root.PersistentFlags().StringVar(&g.tenant, "tenant", os.Getenv("HIVE_TENANT"), "Tenant to act in; empty for the central context.")
	root.PersistentFlags().StringVar(&g.tokenFile, "token-file", defaultTokenFile(), "Where the login token is kept.")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", envOr("HIVE_LOG_LEVEL", "warn"), "Log level.")

	root.AddCommand(
		NewLoginCommand(&g),
		NewLogoutCommand(&g),
		NewListCommand(&g),
		NewExportCommand(&g),
	)
	return root
}

func (g *globalFlags) client() (*client.Client, error) {
	return client.New(g.addr,
		client.WithTenant(g.tenant),
		client.WithTokenStore(&fileTokenStore{path: g.tokenFile}),
		client.WithUnauthorizedHandler(func() {
			fmt.Fprintln(os.Stderr, "session expired, run `hivectl login` again")
		}),
	)
}

// fileTokenStore keeps the bearer token in a private file.
type fileTokenStore struct {
	path string
}

func (s *fileTokenStore) Token() string {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func (s *fileTokenStore) SetToken(token string) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		utils.L().Warn("token dir", zap.Error(err))
		return
	}
	if err := os.WriteFile(s.path, []byte(token+"\n"), 0o600); err != nil {
		utils.L().Warn("save token", zap.Error(err))
	}
}

func (s *fileTokenStore) Clear() {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		utils.L().Warn("remove token", zap.Error(err))
	}
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		if u, uerr := user.Current(); uerr == nil {
			dir = u.HomeDir
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "hivectl", "token")
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
