package main

import (
	"fmt"
	"os"

	"mightyhooks/internal/githook"
	"mightyhooks/internal/logging"

	"github.com/spf13/cobra"
)

var (
	githubRepo   string
	githubToken  string
	githubEvents []string
	githubAPIURL string
	githubScheme string
)

var githubCmd = &cobra.Command{
	Use:   "github",
	Short: "Manage GitHub repository webhooks",
}

var githubRegisterCmd = &cobra.Command{
	Use:   "register <route-key>",
	Short: "Point a GitHub repository webhook at a route",
	Long: `Create or update a repository webhook on GitHub that posts to
https://<route-key> with the route's content type and incoming secret.

Running it again is safe: an existing hook with the same URL is reused.

Example:
  mightyhooks github register hooks.example.com/github --repo octo/app --events push,release`,
	Args: cobra.ExactArgs(1),
	RunE: runGitHubRegister,
}

func init() {
	githubRegisterCmd.Flags().StringVar(&githubRepo, "repo", "", "Repository as owner/name")
	githubRegisterCmd.Flags().StringVar(&githubToken, "token", "", "GitHub token with admin:repo_hook scope (default: $GITHUB_TOKEN)")
	githubRegisterCmd.Flags().StringSliceVar(&githubEvents, "events", githook.DefaultEvents, "Events that trigger the webhook")
	githubRegisterCmd.Flags().StringVar(&githubAPIURL, "api-url", "", "GitHub Enterprise API URL")
	githubRegisterCmd.Flags().StringVar(&githubScheme, "scheme", "https", "Scheme of the public hook URL")
	_ = githubRegisterCmd.MarkFlagRequired("repo")

	githubCmd.AddCommand(githubRegisterCmd)
}

func runGitHubRegister(cmd *cobra.Command, args []string) error {
	routeKey := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	hook, ok := cfg.Hooks[routeKey]
	if !ok {
		return fmt.Errorf("hook '%s' not found in config file %s", routeKey, cfg.Path())
	}

	token := githubToken
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	client, err := githook.NewClient(cmd.Context(), token, githubAPIURL)
	if err != nil {
		return err
	}

	logger := logging.New(cmd.ErrOrStderr(), cfg.LogLevel)
	res, err := githook.New(client, logger).Register(cmd.Context(), githook.Request{
		Repo:        githubRepo,
		RouteKey:    routeKey,
		ContentType: hook.In.ContentType,
		Secret:      hook.In.Secret256,
		Events:      githubEvents,
		Scheme:      githubScheme,
	})
	if err != nil {
		return err
	}

	switch {
	case res.Created:
		fmt.Fprintf(cmd.OutOrStdout(), "Created webhook %d on %s -> %s\n", res.HookID, githubRepo, res.URL)
	case res.Updated:
		fmt.Fprintf(cmd.OutOrStdout(), "Updated webhook %d on %s -> %s\n", res.HookID, githubRepo, res.URL)
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "Webhook %d on %s already up to date\n", res.HookID, githubRepo)
	}
	return nil
}
