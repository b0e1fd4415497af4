package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/renderinc/forumsync/internal/feed"
	"github.com/renderinc/forumsync/internal/forum"
	"github.com/renderinc/forumsync/internal/session"
)

func rootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Music Forum client",
		Long: `forum reads and writes the Music Forum from the terminal or a
local web page.

Reading the feed needs no account. Liking, commenting and posting need a
session: sign in once with "forum login" and it is kept in the data
directory until you log out or the forum rejects it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Directory for the session database and search index")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		loginCmd(opts),
		logoutCmd(opts),
		whoamiCmd(opts),
		feedCmd(opts),
		showCmd(opts),
		likeCmd(opts),
		commentCmd(opts),
		postCmd(opts),
		searchCmd(opts),
		reindexCmd(opts),
		serveCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)

	return cmd
}

// withApp runs fn with the wired components and closes them afterwards
func withApp(opts *globalOptions, fn func(a *app) error) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func loginCmd(opts *globalOptions) *cobra.Command {
	var assertion, assertionFile string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a Google identity token",
		Long: `Exchange a Google identity token (the "credential" returned by Google
Sign-In) for a forum session. Use --assertion-file - to read it from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if assertionFile != "" {
				data, err := readAssertion(cmd.InOrStdin(), assertionFile)
				if err != nil {
					return err
				}
				assertion = data
			}
			if strings.TrimSpace(assertion) == "" {
				return errors.New("an identity token is required (--assertion or --assertion-file)")
			}

			return withApp(opts, func(a *app) error {
				identity, err := a.session.Exchange(cmd.Context(), a.client, assertion)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s <%s>\n", identity.Name, identity.Email)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&assertion, "assertion", "", "Google identity token")
	cmd.Flags().StringVar(&assertionFile, "assertion-file", "", "File holding the identity token (- for stdin)")
	return cmd
}

func readAssertion(stdin io.Reader, path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read identity token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func logoutCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				a.session.Logout()
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
				return nil
			})
		},
	}
}

func whoamiCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				current := a.session.Current()
				if !current.Authenticated {
					return fmt.Errorf("whoami: %w", session.ErrLoginRequired)
				}
				printIdentity(cmd.OutOrStdout(), current)
				return nil
			})
		},
	}
}

// loadFeed refreshes the collection. When the forum is unreachable the
// last-known posts are kept and a warning is logged
func loadFeed(cmd *cobra.Command, a *app) error {
	err := a.feed.Load(cmd.Context())
	if err == nil {
		return nil
	}
	if len(a.feed.Posts()) == 0 {
		return err
	}
	a.logger.Warn("Showing cached posts", slog.String("error", err.Error()))
	return nil
}

func feedCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "feed",
		Short: "List posts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				if err := loadFeed(cmd, a); err != nil {
					return err
				}
				printFeed(cmd.OutOrStdout(), a.feed)
				return nil
			})
		},
	}
}

func showCmd(opts *globalOptions) *cobra.Command {
	var cached bool

	cmd := &cobra.Command{
		Use:   "show <post-id>",
		Short: "Show a post with its comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				if cached {
					return showCached(cmd, a, args[0])
				}
				if err := loadFeed(cmd, a); err != nil {
					return err
				}
				post, err := a.feed.OpenDetail(args[0])
				if err != nil {
					return err
				}
				printDetail(cmd.OutOrStdout(), post, a.feed.IsLiked(post))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&cached, "cached", false, "Show the stored copy without contacting the forum")
	return cmd
}

// showCached prints a post from the local cache only
func showCached(cmd *cobra.Command, a *app, id string) error {
	post, err := a.db.GetPost(id)
	if err != nil {
		return err
	}
	if post == nil {
		return fmt.Errorf("show %s: %w", id, feed.ErrPostNotFound)
	}
	printDetail(cmd.OutOrStdout(), post, a.feed.IsLiked(post))
	return nil
}

func likeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "like <post-id>",
		Short: "Like or unlike a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				post, err := a.feed.ToggleLike(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				state := "Unliked"
				if a.feed.IsLiked(post) {
					state = "Liked"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %q (%d likes)\n", state, post.Title, post.LikeCount())
				return nil
			})
		},
	}
}

func commentCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "comment <post-id> <text>",
		Short: "Comment on a post",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				text := strings.Join(args[1:], " ")
				post, err := a.feed.AddComment(cmd.Context(), args[0], text)
				if err != nil {
					return err
				}
				if post == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to post")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Commented on %q (%d comments)\n", post.Title, post.CommentCount())
				return nil
			})
		},
	}
}

func postCmd(opts *globalOptions) *cobra.Command {
	var draft forum.Draft

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Create a post",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				if err := a.composer.Open(); err != nil {
					return err
				}
				a.composer.Update(draft)
				post, err := a.composer.Submit(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created post %s: %q\n", post.ID, post.Title)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&draft.Title, "title", "", "Post title (required)")
	cmd.Flags().StringVar(&draft.Content, "content", "", "Post content (required)")
	cmd.Flags().StringVar(&draft.Image, "image", "", "Image URL (a placeholder is used when empty)")
	return cmd
}

func searchCmd(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search cached posts",
		Long: `Search the posts cached by the last feed load. Supports quoted
phrases, +required and -excluded terms, fuzzy matching with ~ and field
queries such as Author:ada.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				idx, err := a.index()
				if err != nil {
					return err
				}
				results, err := idx.Search(strings.Join(args, " "), limit)
				if err != nil {
					return err
				}
				printResults(cmd.OutOrStdout(), results)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of results")
	return cmd
}

func reindexCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index from cached posts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				idx, err := a.index()
				if err != nil {
					return err
				}
				n, err := idx.IndexFromStorage(a.db)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d posts\n", n)
				return nil
			})
		},
	}
}
