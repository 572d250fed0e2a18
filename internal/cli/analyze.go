package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/review-moderation/backend/internal/review"
	"github.com/review-moderation/backend/internal/reviewform"
	"github.com/review-moderation/backend/internal/session"
)

var (
	flagReview      string
	flagStakeholder string
	flagPlatform    string
	flagStars       int
	flagFormat      string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a single review",
	Long:  "Analyze runs one moderation and analysis cycle. Pass --review - to read the review text from stdin.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		form, err := buildForm(cmd.InOrStdin())
		if err != nil {
			exitCode = ExitUsageError
			return err
		}
		if flagFormat != "text" && flagFormat != "json" {
			exitCode = ExitUsageError
			return fmt.Errorf("unknown format %q", flagFormat)
		}

		a, err := loadApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		exitCode, err = analyze(cmd.Context(), cmd.OutOrStdout(), a.Controller, form, flagFormat)
		return err
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&flagReview, "review", "", "Review text, or - to read stdin")
	analyzeCmd.Flags().StringVar(&flagStakeholder, "stakeholder", "", "Business the review is about")
	analyzeCmd.Flags().StringVar(&flagPlatform, "platform", "", "Platform where the review was posted (Google, Yelp, TripAdvisor, Other)")
	analyzeCmd.Flags().IntVar(&flagStars, "stars", 0, "Star rating 1-5, 0 for unrated")
	analyzeCmd.Flags().StringVar(&flagFormat, "format", "text", "Output format (text, json)")
}

func buildForm(stdin io.Reader) (review.Form, error) {
	form := review.Form{
		Review:      flagReview,
		Stakeholder: flagStakeholder,
		Platform:    flagPlatform,
	}

	if flagReview == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return review.Form{}, fmt.Errorf("failed to read review from stdin: %w", err)
		}
		form.Review = string(data)
	}

	if flagStars < 0 || flagStars > review.MaxRating {
		return review.Form{}, fmt.Errorf("--stars must be between 0 and %d", review.MaxRating)
	}
	if flagStars > 0 {
		selection := flagStars - 1
		form.Selection = &selection
	}

	return form, nil
}

// analyze runs the form through a throwaway session and writes the result.
func analyze(ctx context.Context, w io.Writer, controller *reviewform.Controller, form review.Form, format string) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	sess, err := controller.Store().Create(ctx)
	if err != nil {
		return ExitRuntimeError, err
	}
	defer controller.Store().Delete(context.Background(), sess.ID)

	result, err := controller.Submit(ctx, sess.ID, form)

	var verr *review.ValidationError
	switch {
	case err == nil:
		return ExitSuccess, write(w, result, format)
	case errors.As(err, &verr):
		if werr := write(w, result, format); werr != nil {
			return ExitRuntimeError, werr
		}
		return ExitUsageError, fmt.Errorf("%s (%s)", reviewform.ValidationNotice, strings.Join(verr.Fields, ", "))
	case errors.Is(err, reviewform.ErrAnalysisFailed):
		if werr := write(w, result, format); werr != nil {
			return ExitRuntimeError, werr
		}
		return ExitAnalysisFail, errors.New(reviewform.FailureNotice)
	default:
		return ExitRuntimeError, err
	}
}

func write(w io.Writer, sess *session.Session, format string) error {
	if sess == nil {
		return nil
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sess)
	}

	if sess.Analysis != nil {
		_, err := fmt.Fprintln(w, review.Render(sess.Analysis))
		return err
	}
	return nil
}

