package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/damoang/angple-store/internal/app"
	"github.com/damoang/angple-store/internal/common"
	"github.com/damoang/angple-store/internal/domain"
	"github.com/spf13/cobra"
)

type seedAccount struct {
	name  string
	email string
	role  domain.Role
}

var seedAccounts = []seedAccount{
	{"Admin", "admin@angple.local", domain.RoleAdmin},
	{"Alice Kim", "alice@angple.local", domain.RoleUser},
	{"Bob Lee", "bob@angple.local", domain.RoleLandlord},
}

func newSeedCommand(e *env) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo accounts, posts and messages",
		Long:  "Creates demo data for local development. Accounts that already exist are reused.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !e.cfg.IsDevelopment() {
				return fmt.Errorf("seed is only allowed in development environments, not %q", e.cfg.App.Env)
			}
			a, err := e.open()
			if err != nil {
				return err
			}
			return seed(cmd.Context(), a, password, e)
		},
	}
	cmd.Flags().StringVar(&password, "password", "password123", "password for the demo accounts")
	return cmd
}

func seed(ctx context.Context, a *app.App, password string, e *env) error {
	ids := make([]string, len(seedAccounts))
	for i, sa := range seedAccounts {
		acc, err := a.Accounts.Create(ctx, &domain.CreateAccountRequest{
			Name: sa.name, Email: sa.email, Password: password, Role: sa.role,
		})
		if errors.Is(err, common.ErrUserAlreadyExists) {
			existing, ferr := a.Accounts.FindByEmail(ctx, sa.email)
			if ferr != nil {
				return ferr
			}
			ids[i] = existing.ID
			continue
		}
		if err != nil {
			return fmt.Errorf("account %s: %w", sa.email, err)
		}
		ids[i] = acc.ID
		fmt.Fprintf(e.stdout, "account %s (%s)\n", sa.email, acc.ID)
	}
	admin, alice, bob := ids[0], ids[1], ids[2]

	welcome, err := a.Content.CreatePost(ctx, &domain.CreatePostRequest{
		Title:      "Welcome to angple",
		Content:    "Introduce yourself below.",
		AuthorID:   admin,
		AuthorName: seedAccounts[0].name,
		Status:     domain.PostPublished,
		Category:   domain.CategoryAnnouncements,
		Tags:       []string{"welcome"},
		IsPinned:   true,
	})
	if err != nil {
		return err
	}
	hello, err := a.Content.AddComment(ctx, &domain.CreateCommentRequest{
		PostID: welcome.ID, AuthorID: alice, AuthorName: seedAccounts[1].name, Content: "Hi everyone!",
	})
	if err != nil {
		return err
	}
	if _, err := a.Content.AddComment(ctx, &domain.CreateCommentRequest{
		PostID: welcome.ID, ParentID: hello.ID, AuthorID: bob, AuthorName: seedAccounts[2].name, Content: "Welcome, Alice.",
	}); err != nil {
		return err
	}
	if _, err := a.Content.ToggleLike(ctx, welcome.ID, alice); err != nil {
		return err
	}

	msg, err := a.Messaging.SendMessage(ctx, &domain.SendMessageRequest{
		SenderID: bob, ReceiverID: alice, Content: "Is the room on Main St still available?",
	})
	if err != nil {
		return err
	}
	if _, err := a.Messaging.SendMessage(ctx, &domain.SendMessageRequest{
		SenderID: alice, ReceiverID: bob, Content: "Yes, come by on Saturday.",
	}); err != nil {
		return err
	}

	fmt.Fprintf(e.stdout, "post %s, conversation %s\n", welcome.ID, msg.ConversationID)
	return nil
}
