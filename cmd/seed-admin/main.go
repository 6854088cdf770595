// Команда seed-admin создаёт учётную запись администратора в настроенном хранилище.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	subscriptionmanager "github.com/magabrotheeeer/subscription-manager/internal/app/subscription-manager"
	"github.com/magabrotheeeer/subscription-manager/internal/config"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-manager/internal/services/directory"
	"github.com/magabrotheeeer/subscription-manager/internal/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:          "seed-admin",
		Short:        "Create an admin account if it does not exist",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				p, err := readPassword(cmd)
				if err != nil {
					return err
				}
				password = p
			}
			return run(cmd.Context(), email, password)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&password, "password", "", "admin password, prompted when empty")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// Подменяются в тестах.
var (
	isTerminal       = term.IsTerminal
	readTermPassword = term.ReadPassword
)

// readPassword читает пароль без эха. Пробелы по краям не обрезаются.
func readPassword(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		return "", errors.New("password is required: pass --password or run in a terminal")
	}
	cmd.Print("Password: ")
	pw, err := readTermPassword(fd)
	cmd.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

func run(ctx context.Context, email, password string) error {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := subscriptionmanager.OpenStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", sl.Err(err))
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("failed to close storage", sl.Err(err))
		}
	}()

	if cfg.Backend == storage.BackendMemory {
		logger.Warn("memory backend selected, the admin account will not outlive this process")
	}

	users := directory.New(logger, backend, nil, 0)
	id, created, err := users.EnsureAdmin(ctx, email, password)
	if err != nil {
		logger.Error("failed to seed admin", sl.Err(err))
		return err
	}
	if created {
		logger.Info("admin created", slog.String("user_id", id), slog.String("email", email))
	} else {
		logger.Info("account already exists, left unchanged", slog.String("user_id", id), slog.String("email", email))
	}
	return nil
}
