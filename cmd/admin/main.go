package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/listkeeper/internal/config"
	"github.com/ignite/listkeeper/internal/domain"
	"github.com/ignite/listkeeper/internal/events"
	"github.com/ignite/listkeeper/internal/identity"
	"github.com/ignite/listkeeper/internal/listregistry"
	"github.com/ignite/listkeeper/internal/notify"
	"github.com/ignite/listkeeper/internal/pending"
	"github.com/ignite/listkeeper/internal/pkg/logger"
	"github.com/ignite/listkeeper/internal/roster"
	"github.com/ignite/listkeeper/internal/subscription"
)

const usage = `Usage: admin <command> [flags]

Commands:
  subscribe    add a member to a list (runs the full workflow)
  unsubscribe  remove a member from a list
  confirm      consume a pending-action token
  moderate     act on a held request (accept, reject, discard, defer, hold)
`

// Operator front-end for the workflow engine. Each invocation runs one
// operation and prints the outcome; suspended workflows print the token the
// next party must act on.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.RedactPII != nil {
		logger.SetRedactPII(*cfg.Logging.RedactPII)
	}

	if cfg.Database.URL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database open failed: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "database ping failed: %v\n", err)
		os.Exit(1)
	}

	svc := buildService(cfg, db)
	ctx := context.Background()

	var res *subscription.Result
	switch os.Args[1] {
	case "subscribe":
		res, err = runSubscribe(ctx, svc, os.Args[2:])
	case "unsubscribe":
		res, err = runUnsubscribe(ctx, svc, os.Args[2:])
	case "confirm":
		res, err = runConfirm(ctx, svc, os.Args[2:])
	case "moderate":
		res, err = runModerate(ctx, svc, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	report(res)
}

// buildService assembles the workflow engine the way cmd/server assembles
// the bounce processor: Redis-backed outbound when available, log outbound
// otherwise, token lifetimes from config.
func buildService(cfg *config.Config, db *sql.DB) *subscription.Service {
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable, logging outbound mail", "error", err.Error())
			rdb = nil
		}
	}
	var outbound notify.Outbound
	if rdb != nil {
		outbound = notify.NewRedisOutbound(rdb, "")
	} else {
		outbound = notify.NewLogOutbound()
	}
	dispatcher := notify.NewDispatcher(outbound,
		notify.NewFileResolver(cfg.Site.TemplateDir, cfg.Site.DefaultLanguage),
		notify.Options{
			VERPDeliveries:   cfg.MTA.VERPPersonalizedDeliveries,
			DevmodeEnabled:   cfg.Devmode.Enabled,
			DevmodeRecipient: cfg.Devmode.Recipient,
			SiteOwner:        cfg.MTA.SiteOwner,
			DefaultLanguage:  cfg.Site.DefaultLanguage,
		})

	return subscription.NewService(
		subscription.NewSQLTxRunner(db,
			identity.NewStore(db), listregistry.NewStore(db),
			roster.NewStore(db), pending.NewStore(db)),
		dispatcher, events.NewBus(),
		subscription.Lifetimes{
			Subscription: cfg.Pending.SubscriptionLifetime(),
			Invitation:   cfg.Pending.InvitationLifetime(),
		})
}

func runSubscribe(ctx context.Context, svc *subscription.Service, args []string) (*subscription.Result, error) {
	fs := flag.NewFlagSet("subscribe", flag.ExitOnError)
	list := fs.String("list", "", "list id (required)")
	email := fs.String("email", "", "subscriber address (required)")
	name := fs.String("name", "", "display name")
	mode := fs.String("mode", "", "delivery mode")
	lang := fs.String("lang", "", "preferred language")
	invite := fs.Bool("invite", false, "send an invitation instead of subscribing")
	preVerified := fs.Bool("pre-verified", false, "skip address verification")
	preConfirmed := fs.Bool("pre-confirmed", false, "skip user confirmation")
	preApproved := fs.Bool("pre-approved", false, "skip moderator approval")
	noWelcome := fs.Bool("no-welcome", false, "suppress the welcome message")
	fs.Parse(args)
	if *list == "" || *email == "" {
		return nil, fmt.Errorf("subscribe: -list and -email are required")
	}

	req := subscription.SubscribeRequest{
		ListID:       *list,
		Email:        *email,
		DisplayName:  *name,
		DeliveryMode: domain.DeliveryMode(*mode),
		Language:     *lang,
		Invitation:   *invite,
		PreVerified:  *preVerified,
		PreConfirmed: *preConfirmed,
		PreApproved:  *preApproved,
	}
	if *noWelcome {
		f := false
		req.SendWelcome = &f
	}
	return svc.Register(ctx, req)
}

func runUnsubscribe(ctx context.Context, svc *subscription.Service, args []string) (*subscription.Result, error) {
	fs := flag.NewFlagSet("unsubscribe", flag.ExitOnError)
	list := fs.String("list", "", "list id (required)")
	email := fs.String("email", "", "member address (required)")
	preConfirmed := fs.Bool("pre-confirmed", false, "skip user confirmation")
	preApproved := fs.Bool("pre-approved", false, "skip moderator approval")
	fs.Parse(args)
	if *list == "" || *email == "" {
		return nil, fmt.Errorf("unsubscribe: -list and -email are required")
	}
	return svc.Unregister(ctx, *list, *email, *preConfirmed, *preApproved)
}

func runConfirm(ctx context.Context, svc *subscription.Service, args []string) (*subscription.Result, error) {
	fs := flag.NewFlagSet("confirm", flag.ExitOnError)
	token := fs.String("token", "", "pending-action token (required)")
	fs.Parse(args)
	if *token == "" {
		return nil, fmt.Errorf("confirm: -token is required")
	}
	return svc.ConfirmToken(ctx, *token)
}

func runModerate(ctx context.Context, svc *subscription.Service, args []string) (*subscription.Result, error) {
	fs := flag.NewFlagSet("moderate", flag.ExitOnError)
	token := fs.String("token", "", "pending-action token (required)")
	action := fs.String("action", "", "accept, reject, discard, defer, or hold (required)")
	reason := fs.String("reason", "", "reason relayed on reject")
	fs.Parse(args)
	if *token == "" || *action == "" {
		return nil, fmt.Errorf("moderate: -token and -action are required")
	}
	return svc.HandleModeratorAction(ctx, *token, subscription.ModeratorAction(*action), *reason)
}

func report(res *subscription.Result) {
	switch {
	case res == nil:
		fmt.Println("done")
	case res.Member != nil:
		fmt.Printf("member %s (%s on %s)\n", res.Member.ID, res.Member.Email, res.Member.ListID)
	case res.Token != "":
		fmt.Printf("pending: token %s awaits %s\n", res.Token, res.TokenOwner)
	default:
		fmt.Println("done")
	}
}
