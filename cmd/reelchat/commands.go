package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kalambet/reelchat/internal/backend"
	"github.com/kalambet/reelchat/internal/config"
	"github.com/kalambet/reelchat/internal/library"
	"github.com/kalambet/reelchat/internal/logging"
	"github.com/kalambet/reelchat/internal/mediahost"
	"github.com/kalambet/reelchat/internal/upload"
	"github.com/kalambet/reelchat/internal/validate"
)

const profileUsername = "username"

// terminalFd reports the descriptor behind r when r is an interactive terminal.
var terminalFd = func(r io.Reader) (int, bool) {
	f, ok := r.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return 0, false
	}
	return int(f.Fd()), true
}

var readPassword = term.ReadPassword

// readSecret takes the value of flag, or prompts on stdin. A terminal reads
// without echo; piped input is taken one line at a time.
func readSecret(cmd *cobra.Command, flag, prompt string) (string, error) {
	if v, _ := cmd.Flags().GetString(flag); v != "" {
		return v, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	if fd, ok := terminalFd(cmd.InOrStdin()); ok {
		b, err := readPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", flag, err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading %s: %w", flag, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// storeSession persists a fresh token and reports how long it lives.
func storeSession(a *app, token, username string) error {
	if err := a.session.SetToken(token); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	if username != "" {
		if err := a.session.SetProfileKey(profileUsername, username); err != nil {
			return fmt.Errorf("saving session: %w", err)
		}
	}
	a.logger.Debug("session stored", "token", logging.SanitizeToken(token))
	if exp, err := a.session.ExpiresAt(); err == nil && !exp.IsZero() {
		printStatus("Session expires", "%s", humanize.Time(exp))
	}
	return nil
}

// --- signup / login / logout ---

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	Long: `Create an account on the backend.

Examples:
  reelchat signup --username jane --email jane@example.com
  reelchat signup --username jane --email jane@example.com --password s3cretpass`,
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		email, _ := cmd.Flags().GetString("email")
		password, err := readSecret(cmd, "password", "Password: ")
		if err != nil {
			return err
		}
		if err := validate.SignUp(username, email, password); err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		token, err := a.client.SignUp(cmd.Context(), backend.SignUpRequest{
			Username: username,
			Email:    email,
			Password: password,
		})
		if err != nil {
			return err
		}

		if token == "" {
			printSuccess("Account created, run `reelchat login` to sign in")
			return nil
		}
		if err := storeSession(a, token, username); err != nil {
			return err
		}
		printSuccess("Account created, signed in as %s", username)
		return nil
	},
}

func init() {
	signupCmd.Flags().String("username", "", "user name (2-30 letters, numbers, ., - or _)")
	signupCmd.Flags().String("email", "", "email address")
	signupCmd.Flags().String("password", "", "password (prompted when omitted)")
	signupCmd.MarkFlagRequired("username")
	signupCmd.MarkFlagRequired("email")
}

var loginCmd = &cobra.Command{
	Use:   "login <username|email>",
	Short: "Sign in with a username or email",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user := strings.TrimSpace(args[0])
		password, err := readSecret(cmd, "password", "Password: ")
		if err != nil {
			return err
		}
		if err := validate.SignIn(user, password); err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		token, err := a.client.Login(cmd.Context(), user, password)
		if err != nil {
			return err
		}
		if err := storeSession(a, token, user); err != nil {
			return err
		}
		printSuccess("Signed in as %s", user)
		return nil
	},
}

func init() {
	loginCmd.Flags().String("password", "", "password (prompted when omitted)")
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.session.Clear(); err != nil {
			return fmt.Errorf("clearing session: %w", err)
		}
		printSuccess("Signed out")
		return nil
	},
}

// --- account ---

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Show or change account settings",
}

var accountShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the signed-in user's name and email",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireToken(); err != nil {
			return err
		}

		acct, err := a.client.Account(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "  %s %s\n", colorize(colorBold, "Username:"), acct.Username)
		fmt.Fprintf(out, "  %s %s\n", colorize(colorBold, "Email:"), acct.Email)
		return nil
	},
}

var accountUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Change the user name and/or email",
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		email, _ := cmd.Flags().GetString("email")
		username, email = strings.TrimSpace(username), strings.TrimSpace(email)
		if err := validate.AccountUpdate(username, email); err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireToken(); err != nil {
			return err
		}

		changed, err := a.client.UpdateAccount(cmd.Context(), backend.Account{Username: username, Email: email})
		if err != nil {
			return err
		}
		if !changed {
			printWarning("Nothing to update: pass --username and/or --email")
			return nil
		}
		if username != "" {
			if err := a.session.SetProfileKey(profileUsername, username); err != nil {
				a.logger.Warn("saving username", "error", err)
			}
		}
		printSuccess("Account updated")
		return nil
	},
}

func init() {
	accountUpdateCmd.Flags().String("username", "", "new user name")
	accountUpdateCmd.Flags().String("email", "", "new email address")
	accountCmd.AddCommand(accountShowCmd)
	accountCmd.AddCommand(accountUpdateCmd)
}

// --- videos ---

var videosCmd = &cobra.Command{
	Use:   "videos",
	Short: "List, delete or upload videos",
}

var videosListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the videos in your library",
	RunE: func(cmd *cobra.Command, args []string) error {
		search, _ := cmd.Flags().GetString("search")
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireToken(); err != nil {
			return err
		}

		videos, err := library.NewService(a.client, a.logger).List(cmd.Context())
		if err != nil {
			return err
		}
		videos = library.Filter(videos, search)

		if asJSON {
			type row struct {
				PublicID    string `json:"public_id"`
				Title       string `json:"title"`
				Status      string `json:"status"`
				URL         string `json:"url"`
				Thumbnail   string `json:"thumbnail,omitempty"`
				Description string `json:"description,omitempty"`
			}
			rows := make([]row, len(videos))
			for i, v := range videos {
				rows[i] = row{v.PublicID, v.Title(), v.Status(), v.URL, v.ThumbnailURL(), v.Description}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}

		printVideos(cmd.OutOrStdout(), videos)
		return nil
	},
}

var videosDeleteCmd = &cobra.Command{
	Use:   "delete <public-id>...",
	Short: "Delete videos by public id",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete %d video(s) permanently. Use --confirm to proceed.", len(args))
			return nil
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireToken(); err != nil {
			return err
		}

		if err := library.NewService(a.client, a.logger).DeleteMany(cmd.Context(), args); err != nil {
			return err
		}
		printSuccess("Deleted %d video(s)", len(args))
		return nil
	},
}

var videosUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a video to the media host and register it",
	Long: `Upload a video to the media host and register it with the backend.

The title defaults to the file name. Files must be videos of at most 2 GB.

Examples:
  reelchat videos upload ./talk.mp4
  reelchat videos upload ./talk.mp4 --title "Keynote" --description "Opening talk"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireToken(); err != nil {
			return err
		}

		host, err := newMediaHost(cmd.Context(), a.cfg, a.logger)
		if err != nil {
			return err
		}

		dialog := upload.NewDialog(host, a.client, a.logger)
		if err := dialog.SelectFile(args[0]); err != nil {
			return err
		}
		if err := dialog.SetTitle(title); err != nil {
			return err
		}
		if err := dialog.SetDescription(description); err != nil {
			return err
		}

		file := dialog.Snapshot().File
		printStep("Uploading %s (%s) via %s", file.Name, humanize.Bytes(uint64(file.Size)), a.cfg.Media.Provider)

		progress := newProgressPrinter(cmd.ErrOrStderr())
		dialog.OnChange = progress.update

		res, err := dialog.Start(cmd.Context())
		progress.done()
		if err != nil {
			if snap := dialog.Snapshot(); snap.Error != "" {
				return errors.New(snap.Error)
			}
			return err
		}

		printSuccess("Uploaded %q", res.Title)
		printStatus("URL", "%s", res.Asset.SecureURL)
		if res.Transcript != "" {
			printStatus("Transcript", "%d characters", len(res.Transcript))
		}
		return nil
	},
}

func init() {
	videosListCmd.Flags().String("search", "", "only show videos whose title contains this text")
	videosListCmd.Flags().Bool("json", false, "print as JSON")
	videosDeleteCmd.Flags().Bool("confirm", false, "confirm deletion")
	videosUploadCmd.Flags().String("title", "", "video title (default: file name)")
	videosUploadCmd.Flags().String("description", "", "video description")
	videosCmd.AddCommand(videosListCmd)
	videosCmd.AddCommand(videosDeleteCmd)
	videosCmd.AddCommand(videosUploadCmd)
}

// newMediaHost picks the upload target from media.provider.
var newMediaHost = func(ctx context.Context, cfg config.Config, logger *slog.Logger) (mediahost.Host, error) {
	switch cfg.Media.Provider {
	case config.ProviderS3:
		return mediahost.NewS3(ctx, mediahost.S3Config{
			Endpoint:      cfg.S3.Endpoint,
			Bucket:        cfg.S3.Bucket,
			Region:        cfg.S3.Region,
			AccessKey:     cfg.S3.AccessKey,
			SecretKey:     cfg.S3.SecretKey,
			PublicBaseURL: cfg.S3.PublicBaseURL,
		}, logger)
	default:
		uploadURL, err := cfg.CloudinaryUploadURL()
		if err != nil {
			return nil, err
		}
		return mediahost.NewCloudinary(uploadURL, cfg.Cloudinary.UploadPreset, logger), nil
	}
}

// progressPrinter redraws one status line per upload phase.
type progressPrinter struct {
	w        io.Writer
	last     int
	state    upload.State
	started  time.Time
	finished bool
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, last: -1, started: time.Now()}
}

func (p *progressPrinter) update(s upload.Snapshot) {
	if p.finished || (s.Progress == p.last && s.State == p.state) {
		return
	}
	if s.State == upload.Idle && p.last >= 0 {
		return
	}
	p.last, p.state = s.Progress, s.State

	const width = 30
	filled := s.Progress * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	fmt.Fprintf(p.w, "\r  %s %3d%%  %-12s", colorize(colorCyan, bar), s.Progress, s.State)
}

func (p *progressPrinter) done() {
	if p.last >= 0 && !p.finished {
		fmt.Fprintf(p.w, "  %s\n", time.Since(p.started).Round(100*time.Millisecond))
	}
	p.finished = true
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			value := k.Value
			if k.Key == "storage.data_dir" {
				value = logging.SanitizePath(value)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  %s\n", colorize(colorBold, k.Key), value, colorize(colorDim, k.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:       "set <key> <value>",
	Short:     "Set a configuration value",
	Args:      cobra.ExactArgs(2),
	ValidArgs: config.ValidKeys(),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
