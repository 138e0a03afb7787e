package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"gracedisk/internal/config"
	"gracedisk/internal/httpserver"
	"gracedisk/internal/logger"
	"gracedisk/internal/store"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gracedisk",
	Short: "Multi-tenant web file manager",
}

// openEnv loads the config and opens the user database. The caller must
// defer db.Close().
func openEnv(cmd *cobra.Command) (*config.Config, *store.Store, logger.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, nil, err
	}
	log := logger.New(cfg.LogLevel)
	db, err := store.Open(cfg.UsersDBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return cfg, db, log, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, log, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		for _, dir := range []string{cfg.StoragePath, cfg.VisitorStoragePath, cfg.UserFilesPath} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", dir, err)
			}
		}

		if cfg.Admin.Password == "" {
			return errors.New("admin.password must be set in the config")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Admin.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		if err := db.EnsureAdmin(context.Background(), cfg.Admin.Username, string(hash)); err != nil {
			return fmt.Errorf("seeding admin account: %w", err)
		}

		srv := httpserver.New(cfg, db, log)
		log.Info("listening", "addr", cfg.Addr(), "storage", cfg.StoragePath)
		return http.ListenAndServe(cfg.Addr(), srv.Handler())
	},
}

var passwdCmd = &cobra.Command{
	Use:   "passwd PASSWORD",
	Short: "Print a bcrypt hash for a password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		fmt.Println(string(h))
		return nil
	},
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add USERNAME PASSWORD",
	Short: "Create an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, _, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		quota, _ := cmd.Flags().GetInt64("quota")
		if quota <= 0 {
			quota = cfg.DefaultQuotaGB
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(args[1]), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		u, err := db.CreateUser(context.Background(), store.User{
			Username:     args[0],
			PasswordHash: string(hash),
			QuotaGB:      quota,
			CanLogin:     true,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Created user %s (id=%d, quota=%dGB)\n", u.Username, u.ID, u.QuotaGB)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, _, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		users, err := db.ListNonAdminUsers(context.Background())
		if err != nil {
			return err
		}
		if len(users) == 0 {
			fmt.Println("No accounts.")
			return nil
		}
		for _, u := range users {
			state := "enabled"
			if !u.CanLogin {
				state = "disabled"
			}
			fmt.Printf("#%d  %-20s  %3dGB  %s\n", u.ID, u.Username, u.QuotaGB, state)
		}
		return nil
	},
}

var userDelCmd = &cobra.Command{
	Use:   "del USERNAME",
	Short: "Delete an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, _, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		u, err := db.GetUserByUsername(ctx, args[0])
		if err != nil {
			return err
		}
		if u == nil {
			return fmt.Errorf("no such user %q", args[0])
		}
		if u.IsAdmin {
			return errors.New("administrator accounts cannot be deleted")
		}
		if err := db.DeleteUser(ctx, u.ID); err != nil {
			return err
		}
		fmt.Printf("Deleted user %s\n", u.Username)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "gracedisk.yaml", "Path to the config file")

	userCmd.AddCommand(userAddCmd)
	userAddCmd.Flags().Int64("quota", 0, "Quota in GB (default from config)")
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userDelCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(passwdCmd)
	rootCmd.AddCommand(userCmd)
}
