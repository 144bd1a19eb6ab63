// Package sessionctl drives a frontend session from the command line: sign in,
// inspect, refresh and sign out, with the session persisted between runs.
package sessionctl

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/guelfi/BarbeariaSaaS/audience"
	"github.com/guelfi/BarbeariaSaaS/auth"
	"github.com/guelfi/BarbeariaSaaS/offline"
	"github.com/guelfi/BarbeariaSaaS/storage"
	"github.com/rs/zerolog"
)

const (
	CommandStatus       = "status"
	CommandLogin        = "login"
	CommandLogout       = "logout"
	CommandRefresh      = "refresh"
	CommandRegister     = "register"
	CommandRegisterShop = "register-shop"
	CommandOffline      = "offline"
	CommandSync         = "sync"
	CommandPending      = "pending"
	CommandCheck        = "check"
)

var commands = []string{
	CommandStatus, CommandLogin, CommandLogout, CommandRefresh, CommandRegister,
	CommandRegisterShop, CommandOffline, CommandSync, CommandPending, CommandCheck,
}

// Config holds sessionctl command configuration.
type Config struct {
	Command      string
	Audience     audience.Audience
	StatePath    string
	RedisAddr    string
	OfflineCache bool
	Latency      time.Duration

	Email    string
	Password string
	Name     string
	Phone    string
	TenantID string
	ShopName string
	Address  string
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ParseConfig parses flags into a Config. The command is the first positional argument.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	var (
		cfg         Config
		audienceArg string
	)
	fs.StringVar(&audienceArg, "audience", envOrDefault(lookup, "SESSION_AUDIENCE", string(audience.Client)), "frontend to act as (admin, desktop, mobile)")
	fs.StringVar(&cfg.StatePath, "state", envOrDefault(lookup, "SESSION_STATE_PATH", ""), "session file (default: data/session-<audience>.json)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", envOrDefault(lookup, "SESSION_REDIS_ADDR", ""), "keep the session in Redis instead of a file")
	fs.BoolVar(&cfg.OfflineCache, "offline-cache", true, "keep credential snapshots for offline login")
	fs.DurationVar(&cfg.Latency, "latency", 0, "simulated latency before each network operation")
	fs.StringVar(&cfg.Email, "email", "", "account email")
	fs.StringVar(&cfg.Password, "password", envOrDefault(lookup, "SESSION_PASSWORD", ""), "account password")
	fs.StringVar(&cfg.Name, "name", "", "display name (register) or owner name (register-shop)")
	fs.StringVar(&cfg.Phone, "phone", "", "contact phone")
	fs.StringVar(&cfg.TenantID, "tenant", "", "barbershop id (register)")
	fs.StringVar(&cfg.ShopName, "shop", "", "barbershop name (register-shop)")
	fs.StringVar(&cfg.Address, "address", "", "barbershop address (register-shop)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	// flags may also follow the command
	cfg.Command = CommandStatus
	if fs.NArg() > 0 {
		cfg.Command = strings.ToLower(fs.Arg(0))
		if err := fs.Parse(fs.Args()[1:]); err != nil {
			return Config{}, err
		}
	}

	aud, err := audience.Parse(audienceArg)
	if err != nil {
		return Config{}, err
	}
	cfg.Audience = aud

	if !isCommand(cfg.Command) {
		return Config{}, fmt.Errorf("unknown command %q (want one of %s)", cfg.Command, strings.Join(commands, ", "))
	}
	if cfg.StatePath == "" {
		cfg.StatePath = filepath.Join("data", "session-"+string(aud)+".json")
	}
	return cfg, nil
}

// OpenSessionStore returns where the session is persisted: Redis when an
// address is configured, the state file otherwise.
func OpenSessionStore(ctx context.Context, cfg Config) (storage.Store, func(), error) {
	if cfg.RedisAddr != "" {
		store, err := storage.DialRedisStore(ctx, cfg.RedisAddr, "", 0, "barbearia:session")
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
	store, err := storage.NewFileStore(cfg.StatePath)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {}, nil
}

// Output is what every command prints.
type Output struct {
	Command string               `json:"command"`
	Message string               `json:"message,omitempty"`
	Session auth.Session         `json:"session"`
	Offline bool                 `json:"offline"`
	Synced  *int                 `json:"synced,omitempty"`
	Pending []offline.QueueEntry `json:"pending,omitempty"`
}

// Run restores the persisted session, executes the command and writes the
// resulting state to out as JSON.
func Run(ctx context.Context, cfg Config, deps auth.Dependencies, out io.Writer, logger zerolog.Logger) error {
	if out == nil {
		out = io.Discard
	}
	profile, err := audience.ProfileFor(cfg.Audience, 0, 0)
	if err != nil {
		return err
	}
	options := []auth.SessionManagerOption{auth.WithLogger(logger), auth.WithLatency(cfg.Latency)}
	if cfg.OfflineCache {
		options = append(options, auth.WithOfflineCache())
	}
	m, err := auth.NewSessionManager(profile, deps, options...)
	if err != nil {
		return err
	}
	if err := m.Initialize(ctx); err != nil {
		return err
	}

	result := Output{Command: cfg.Command}
	switch cfg.Command {
	case CommandStatus:
	case CommandLogin:
		res, err := m.Login(ctx, cfg.Email, cfg.Password)
		if err != nil {
			return err
		}
		result.Message = res.Message
	case CommandLogout:
		if err := m.Logout(ctx); err != nil {
			return err
		}
		result.Message = "signed out"
	case CommandRefresh:
		res, err := m.Refresh(ctx)
		if err != nil {
			return err
		}
		result.Message = res.Message
	case CommandRegister:
		res, err := m.RegisterClient(ctx, auth.ClientRegistration{
			Name:     cfg.Name,
			Email:    cfg.Email,
			Phone:    cfg.Phone,
			Password: cfg.Password,
			TenantID: cfg.TenantID,
		})
		if err != nil {
			return err
		}
		result.Message = res.Message
	case CommandRegisterShop:
		res, err := m.RegisterBarbershop(ctx, auth.BarbershopRegistration{
			ShopName:  cfg.ShopName,
			Address:   cfg.Address,
			Phone:     cfg.Phone,
			OwnerName: cfg.Name,
			Email:     cfg.Email,
			Password:  cfg.Password,
		})
		if err != nil {
			return err
		}
		result.Message = res.Message
	case CommandOffline:
		if err := m.EnableOfflineMode(ctx); err != nil {
			return err
		}
		result.Message = "offline mode enabled"
	case CommandSync:
		synced, err := m.SyncWhenOnline(ctx)
		result.Synced = &synced
		if err != nil {
			return err
		}
		result.Message = "online"
	case CommandPending:
		if result.Pending, err = m.PendingActions(ctx); err != nil {
			return err
		}
	case CommandCheck:
		expired, err := m.CheckExpiry(ctx)
		if err != nil {
			return err
		}
		if expired {
			result.Message = "session expired, signed out"
		}
	}

	result.Session = m.State()
	if result.Offline, err = m.IsOfflineMode(ctx); err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// Describe renders err for a terminal: the user-facing message of auth errors,
// the raw error otherwise.
func Describe(err error) string {
	var authErr *auth.AuthError
	if !errors.As(err, &authErr) {
		return err.Error()
	}
	if authErr.Kind == auth.KindValidationError && authErr.Err != nil {
		return string(authErr.Kind) + ": " + authErr.Err.Error()
	}
	return string(authErr.Kind) + ": " + authErr.Kind.Message()
}

func isCommand(name string) bool {
	for _, c := range commands {
		if c == name {
			return true
		}
	}
	return false
}

func envOrDefault(lookup EnvLookup, key, fallback string) string {
	if lookup == nil {
		return fallback
	}
	if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}
