package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"uniauth/internal/config"
	"uniauth/internal/credential"
	"uniauth/internal/domain"
	"uniauth/internal/httpx"
	"uniauth/internal/mail"
	"uniauth/internal/merge"
	"uniauth/internal/observability/middleware"
	"uniauth/internal/service/impl"
	"uniauth/internal/store"
	"uniauth/internal/token"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
)

type app struct {
	cfg     config.Config
	st      *store.Store
	admin   *impl.AdminServiceImpl
	emails  *impl.EmailLinkServiceImpl
	account *impl.AccountServiceImpl
	engine  *merge.Engine
	log     *slog.Logger
	in      io.Reader
	out     io.Writer
}

func newApp(cfg config.Config, st *store.Store, logger *slog.Logger, in io.Reader, out io.Writer) (*app, error) {
	tokens, err := token.NewIssuer(token.Config{
		SigningKey: []byte(cfg.TokenSecret),
		Lifetime:   cfg.VerificationTTL(),
	})
	if err != nil {
		return nil, err
	}
	hasher := credential.NewArgon2id()
	engine := merge.NewEngine(st, merge.DefaultRegistry(), logger)
	emails := impl.NewEmailLinkServiceImpl(st, hasher, tokens, mail.LogSender{Logger: logger}, cfg, logger)
	// the CLI has no SSO client, so linking from a ticket always fails
	return &app{
		cfg:     cfg,
		st:      st,
		admin:   impl.NewAdminServiceImpl(st, cfg, logger),
		emails:  emails,
		account: impl.NewAccountServiceImpl(st, hasher, emails, impl.Chain{}, engine, cfg, logger),
		engine:  engine,
		log:     logger,
		in:      in,
		out:     out,
	}, nil
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type command struct {
	summary string
	usage   string
	minArgs int
	maxArgs int // -1 for no limit
	flags   func(fs *pflag.FlagSet) any
	run     func(ctx context.Context, a *app, opts any, args []string) error
}

func noFlags(*pflag.FlagSet) any { return nil }

var commandOrder = []string{
	"add-institution",
	"remove-institution",
	"migrate-sso",
	"migrate-credentials",
	"sweep",
	"merge",
	"add-email",
	"verify-email",
	"set-password",
}

var commands = map[string]command{
	"add-institution": {
		summary: "register or update an SSO institution",
		usage:   "NAME SERVER_URL",
		minArgs: 2,
		maxArgs: 2,
		flags:   noFlags,
		run: func(ctx context.Context, a *app, _ any, args []string) error {
			res, err := a.admin.AddInstitution(a.ctx(ctx), args[0], args[1])
			if res != nil {
				if perr := a.print(res); perr != nil {
					return perr
				}
			}
			return err
		},
	},
	"remove-institution": {
		summary: "delete an institution and its accounts",
		usage:   "SLUG",
		minArgs: 1,
		maxArgs: 1,
		flags:   noFlags,
		run: func(ctx context.Context, a *app, _ any, args []string) error {
			n, err := a.admin.RemoveInstitution(a.ctx(ctx), args[0])
			if err != nil {
				return err
			}
			return a.print(map[string]any{"slug": args[0], "accountsRemoved": n})
		},
	},
	"migrate-sso": {
		summary: "turn plain SSO identities into unlinked identities of SLUG",
		usage:   "SLUG",
		minArgs: 1,
		maxArgs: 1,
		flags:   noFlags,
		run: func(ctx context.Context, a *app, _ any, args []string) error {
			report, err := a.admin.MigrateSSO(a.ctx(ctx), args[0])
			if report != nil {
				if perr := a.print(report); perr != nil {
					return perr
				}
			}
			return err
		},
	},
	"migrate-credentials": {
		summary: "give local identities a profile and a verified linked email",
		usage:   "",
		minArgs: 0,
		maxArgs: 0,
		flags:   noFlags,
		run: func(ctx context.Context, a *app, _ any, _ []string) error {
			report, err := a.admin.MigrateCredentials(a.ctx(ctx))
			if report != nil {
				if perr := a.print(report); perr != nil {
					return perr
				}
			}
			return err
		},
	},
	"sweep": {
		summary: "delete placeholder identities older than --days",
		usage:   "[--days N] [--interval D] [--metrics-addr ADDR]",
		minArgs: 0,
		maxArgs: 0,
		flags: func(fs *pflag.FlagSet) any {
			o := &sweepOpts{}
			fs.IntVar(&o.days, "days", 1, "age in days a placeholder must reach")
			fs.DurationVar(&o.interval, "interval", 0, "repeat every interval until interrupted; 0 runs once")
			fs.StringVar(&o.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz here while looping (default METRICS_ADDR)")
			return o
		},
		run: func(ctx context.Context, a *app, opts any, _ []string) error {
			return a.sweep(ctx, opts.(*sweepOpts))
		},
	},
	"merge": {
		summary: "merge alias identities into a primary one, by handle",
		usage:   "[--recursive] PRIMARY ALIAS...",
		minArgs: 2,
		maxArgs: -1,
		flags: func(fs *pflag.FlagSet) any {
			o := &mergeOpts{}
			fs.BoolVar(&o.recursive, "recursive", true, "merge related objects present on both sides instead of discarding the alias's")
			return o
		},
		run: func(ctx context.Context, a *app, opts any, args []string) error {
			return a.merge(ctx, opts.(*mergeOpts), args[0], args[1:])
		},
	},
	"add-email": {
		summary: "link a pending email to an identity and mail its token",
		usage:   "HANDLE ADDRESS",
		minArgs: 2,
		maxArgs: 2,
		flags:   noFlags,
		run: func(ctx context.Context, a *app, _ any, args []string) error {
			ctx = a.ctx(ctx)
			ident, err := a.st.Identities().GetByHandle(ctx, args[0])
			if err != nil {
				return fmt.Errorf("identity %q: %w", args[0], err)
			}
			email, err := a.emails.AddEmail(ctx, ident.ID, args[1])
			if err != nil {
				return err
			}
			return a.print(emailView{LinkedEmail: email, State: email.State()})
		},
	},
	"verify-email": {
		summary: "verify a linked email with its mailed token",
		usage:   "EMAIL_ID TOKEN",
		minArgs: 2,
		maxArgs: 2,
		flags:   noFlags,
		run: func(ctx context.Context, a *app, _ any, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return &domain.FormatError{Value: args[0], Reason: "not an email id"}
			}
			res, err := a.emails.Verify(a.ctx(ctx), id, args[1])
			if err != nil {
				return err
			}
			return a.print(res)
		},
	},
	"set-password": {
		summary: "set the password of an identity, read from the first line of stdin",
		usage:   "HANDLE",
		minArgs: 1,
		maxArgs: 1,
		flags:   noFlags,
		run: func(ctx context.Context, a *app, _ any, args []string) error {
			ctx = a.ctx(ctx)
			ident, err := a.st.Identities().GetByHandle(ctx, args[0])
			if err != nil {
				return fmt.Errorf("identity %q: %w", args[0], err)
			}
			password, err := readLine(a.in)
			if err != nil {
				return err
			}
			if err := a.account.SetPassword(ctx, ident.ID, password); err != nil {
				return err
			}
			return a.print(map[string]any{
				"handle":          ident.Handle,
				"displayId":       domain.DisplayID(ident.Handle, a.cfg.SSOTag),
				"passwordChanged": true,
			})
		},
	},
}

type emailView struct {
	*domain.LinkedEmail
	State domain.EmailState `json:"state"`
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ctx tags ctx with a fresh request id so the log lines of one command can
// be correlated.
func (a *app) ctx(ctx context.Context) context.Context {
	return middleware.WithRequestID(ctx, "")
}

type sweepOpts struct {
	days        int
	interval    time.Duration
	metricsAddr string
}

func (a *app) sweep(ctx context.Context, o *sweepOpts) error {
	if o.interval <= 0 {
		res, err := a.admin.SweepPlaceholders(a.ctx(ctx), o.days)
		if err != nil {
			return err
		}
		return a.print(res)
	}

	addr := o.metricsAddr
	if addr == "" {
		addr = a.cfg.MetricsAddr
	}
	if addr != "" {
		registerMetrics()
		sqlDB, err := a.st.DB.DB()
		if err != nil {
			return err
		}
		mux := httpx.NewOpsMux(prometheus.DefaultGatherer, sqlDB.PingContext)
		go func() {
			if err := httpx.Serve(ctx, addr, mux, a.log); err != nil {
				a.log.Error("ops listener", "error", err)
			}
		}()
	}

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for {
		if _, err := a.admin.SweepPlaceholders(a.ctx(ctx), o.days); err != nil {
			a.log.Error("sweep", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

type mergeOpts struct {
	recursive bool
}

func (a *app) merge(ctx context.Context, o *mergeOpts, primaryHandle string, aliasHandles []string) error {
	ctx = a.ctx(ctx)
	primary, err := a.st.Identities().GetByHandle(ctx, primaryHandle)
	if err != nil {
		return fmt.Errorf("primary %q: %w", primaryHandle, err)
	}
	aliases := make([]*domain.Identity, 0, len(aliasHandles))
	for _, h := range aliasHandles {
		alias, err := a.st.Identities().GetByHandle(ctx, h)
		if err != nil {
			return fmt.Errorf("alias %q: %w", h, err)
		}
		aliases = append(aliases, alias)
	}
	res, err := a.engine.Merge(ctx, primary, aliases, o.recursive)
	if err != nil {
		return err
	}
	return a.print(res)
}
