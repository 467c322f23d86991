package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/regro/regolith/internal/rc"
	"github.com/regro/regolith/internal/store"
)

const defaultSMTPPort = 587

var (
	errUnknownEmailTarget = errors.New("unknown email target (want test or list)")
	errEmailNotConfigured = errors.New("rc email.url and email.from are required")
)

// EmailCmd returns the email command.
func EmailCmd(cfg *rc.Config) *Command {
	flags := flag.NewFlagSet("email", flag.ContinueOnError)
	flags.String("to", "", "Recipient of the test message (default: email.from)")

	return &Command{
		Flags:   flags,
		Usage:   "email <test|list>",
		Short:   "Send email or list recipients",
		NeedsRC: true,
		Long: `Targets:
  test   send a test message through the SMTP server in rc "email"
  list   print "name <email>" for every person with an email address`,
		Exec: func(ctx context.Context, io *IO, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("%w: email <test|list>", errArgsRequired)
			}

			switch args[0] {
			case "test":
				to, _ := flags.GetString("to")

				return sendTestEmail(cfg.Email, to)
			case "list":
				return withStore(ctx, cfg, func(c *store.Client) error {
					return listRecipients(ctx, io, c)
				})
			}

			return fmt.Errorf("%w: %s", errUnknownEmailTarget, args[0])
		},
	}
}

func listRecipients(ctx context.Context, io *IO, c *store.Client) error {
	people, err := c.AllDocuments(ctx, "people", false)
	if err != nil {
		return err
	}

	for _, p := range people {
		email, _ := p["email"].(string)
		if email == "" {
			continue
		}

		name, _ := p["name"].(string)
		if name == "" {
			name = p.ID()
		}

		io.Printf("%s <%s>\n", name, email)
	}

	return nil
}

func sendTestEmail(cfg rc.Email, to string) error {
	if cfg.URL == "" || cfg.From == "" {
		return errEmailNotConfigured
	}

	if to == "" {
		to = cfg.From
	}

	port := cfg.Port
	if port == 0 {
		port = defaultSMTPPort
	}

	addr := net.JoinHostPort(cfg.URL, strconv.Itoa(port))

	var auth smtp.Auth
	if cfg.User != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, cfg.URL)
	}

	msg := strings.Join([]string{
		"From: " + cfg.From,
		"To: " + to,
		"Subject: regolith test message",
		"Date: " + time.Now().Format(time.RFC1123Z),
		"",
		"This is a test message from regolith.",
		"",
	}, "\r\n")

	if err := smtp.SendMail(addr, auth, cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send to %s via %s: %w", to, addr, err)
	}

	return nil
}
