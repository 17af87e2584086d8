package cli

import (
	"context"
	"os"

	"github.com/dmitrijs2005/rollcall/internal/client/client"
	"github.com/dmitrijs2005/rollcall/internal/client/config"
	"github.com/spf13/cobra"
)

// API is the part of the Rollcall client the commands use.
type API interface {
	Login(ctx context.Context, email, password string) (string, error)
	CreateAccount(ctx context.Context, r client.AccountRequest) (*client.Account, error)
	Allocate(ctx context.Context, namespace, prefix string) (*client.Identifier, error)
	Peek(ctx context.Context, namespace string) (*client.Counter, error)
	Seed(ctx context.Context, namespace, prefix string, lastIssued int64) (*client.Counter, error)
	CreateDocument(ctx context.Context, path string, fields map[string]any) (*client.DocumentRef, error)
	Close() error
}

// Dialer opens an API for the resolved configuration.
type Dialer func(cfg *config.Config) (API, error)

func dialGRPC(cfg *config.Config) (API, error) {
	c, err := client.NewGRPCClient(cfg.ServerEndpointAddr)
	if err != nil {
		return nil, err
	}
	c.SetTimeout(cfg.Timeout)
	c.SetAccessToken(cfg.AccessToken)
	return c, nil
}

type App struct {
	config *config.Config
	dial   Dialer
	getenv func(string) string
	api    API

	configFile string
	addr       string
	token      string
	tokenFile  string
}

func NewApp() *App {
	return &App{config: &config.Config{}, dial: dialGRPC, getenv: os.Getenv}
}

// setup resolves configuration (defaults, JSON, environment, flags) and
// dials the server.
func (a *App) setup(cmd *cobra.Command) error {
	*a.config = config.Config{}
	a.config.LoadDefaults()
	if a.configFile != "" {
		if err := a.config.LoadJSON(a.configFile); err != nil {
			return err
		}
	}
	a.config.ApplyEnv(a.getenv)

	flags := cmd.Root().PersistentFlags()
	if flags.Changed("addr") {
		a.config.ServerEndpointAddr = a.addr
	}
	if flags.Changed("token") {
		a.config.AccessToken = a.token
	}
	if flags.Changed("token-file") {
		a.config.TokenFile = a.tokenFile
	}
	if flags.Changed("timeout") {
		a.config.Timeout, _ = flags.GetDuration("timeout")
	}
	if err := a.config.LoadToken(); err != nil {
		return err
	}

	api, err := a.dial(a.config)
	if err != nil {
		return err
	}
	a.api = api
	return nil
}

func (a *App) teardown() error {
	if a.api == nil {
		return nil
	}
	return a.api.Close()
}

// NewRootCmd builds the rollcallctl command tree.
func (a *App) NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rollcallctl",
		Short:         "Operate a Rollcall server",
		Long:          "rollcallctl logs in to a Rollcall server, creates accounts, inspects and seeds identifier counters and posts documents.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}

	f := root.PersistentFlags()
	f.StringVarP(&a.configFile, "config", "c", "", "JSON config file")
	f.StringVarP(&a.addr, "addr", "a", "", "server address (env "+config.EnvAddr+")")
	f.StringVarP(&a.token, "token", "t", "", "access token (env "+config.EnvToken+")")
	f.StringVar(&a.tokenFile, "token-file", "", "file login stores the access token in")
	f.Duration("timeout", 0, "per-call timeout")

	root.AddCommand(
		a.loginCmd(),
		a.createAccountCmd(),
		a.allocateCmd(),
		a.peekCmd(),
		a.seedCmd(),
		a.postDocumentCmd(),
	)
	return root
}
