package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/silbaram/artifact-driven-agent/internal/agent"
	"github.com/silbaram/artifact-driven-agent/internal/models"
	"github.com/silbaram/artifact-driven-agent/internal/status"
)

// defaultSender is the acting role inside an agent session, else "user"
func defaultSender() string {
	if role := os.Getenv(agent.EnvRole); role != "" {
		return role
	}
	return "user"
}

// NewQuestionCommand creates the question command group
func NewQuestionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "question",
		Short: "Ask, answer and list cross-role questions",
	}

	ask := &cobra.Command{
		Use:   "ask <question>",
		Short: "Record a question and notify its addressee",
		Args:  cobra.MinimumNArgs(1),
		RunE:  questionAskCommand,
	}
	ask.Flags().String("from", "", "Asking role (default: $ADA_ROLE or user)")
	ask.Flags().String("to", "user", "Addressed role or user")
	ask.Flags().StringSlice("option", nil, "Answer option (repeatable)")
	ask.Flags().String("priority", string(models.PriorityNormal), "low, normal, high or urgent")
	cmd.AddCommand(ask)

	cmd.AddCommand(&cobra.Command{
		Use:   "answer <questionId> <answer>",
		Short: "Answer a waiting question",
		Args:  cobra.MinimumNArgs(2),
		RunE:  questionAnswerCommand,
	})

	list := &cobra.Command{
		Use:   "list",
		Short: "List questions",
		Args:  cobra.NoArgs,
		RunE:  questionListCommand,
	}
	list.Flags().Bool("all", false, "Include answered questions")
	cmd.AddCommand(list)

	return cmd
}

func questionAskCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	from, _ := cmd.Flags().GetString("from")
	if from == "" {
		from = defaultSender()
	}
	to, _ := cmd.Flags().GetString("to")
	options, _ := cmd.Flags().GetStringSlice("option")
	priority, _ := cmd.Flags().GetString("priority")

	switch models.QuestionPriority(priority) {
	case models.PriorityLow, models.PriorityNormal, models.PriorityHigh, models.PriorityUrgent:
	default:
		return fmt.Errorf("invalid priority %q, must be one of: low, normal, high, urgent", priority)
	}

	id, ok := a.store.AddQuestion(from, to, strings.Join(args, " "), options, models.QuestionPriority(priority))
	if !ok {
		return fmt.Errorf("could not save the question to %s", a.store.Path())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Question %s recorded\n", color.CyanString("%s", id))
	return nil
}

func questionAnswerCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	id := args[0]
	err = a.store.AnswerQuestion(id, strings.Join(args[1:], " "))
	switch {
	case errors.Is(err, status.ErrQuestionNotFound):
		return fmt.Errorf("%w\nHint: ada question list", err)
	case err != nil:
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Question %s answered\n", id)
	return nil
}

func questionListCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	all, _ := cmd.Flags().GetBool("all")
	out := cmd.OutOrStdout()

	shown := 0
	for _, q := range a.store.Read().PendingQuestions {
		if !all && q.Status != models.QuestionWaiting {
			continue
		}
		shown++
		fmt.Fprintf(out, "%s [%s] %s -> %s  (%s)\n", color.CyanString("%s", q.ID), q.Priority, q.From, q.To, q.Status)
		fmt.Fprintf(out, "    %s\n", q.Question)
		if len(q.Options) > 0 {
			fmt.Fprintf(out, "    options: %s\n", strings.Join(q.Options, " | "))
		}
		if q.Answer != "" {
			fmt.Fprintf(out, "    answer: %s\n", q.Answer)
		}
	}
	if shown == 0 {
		fmt.Fprintln(out, "No pending questions")
	}
	return nil
}

// NewNotifyCommand creates the notify command group
func NewNotifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send, list and acknowledge notifications",
	}

	send := &cobra.Command{
		Use:   "send <message>",
		Short: "Append a notification",
		Args:  cobra.MinimumNArgs(1),
		RunE:  notifySendCommand,
	}
	send.Flags().String("type", string(models.NotifyInfo), "info, warning, error, question or complete")
	send.Flags().String("from", "", "Sending role (default: $ADA_ROLE or user)")
	send.Flags().String("to", models.NotifyAll, "Addressed role, session or all")
	cmd.AddCommand(send)

	list := &cobra.Command{
		Use:   "list",
		Short: "List unread notifications",
		Args:  cobra.NoArgs,
		RunE:  notifyListCommand,
	}
	list.Flags().String("to", "", "Only notifications for this role (plus broadcasts)")
	cmd.AddCommand(list)

	read := &cobra.Command{
		Use:   "read [notificationId]...",
		Short: "Mark notifications read",
		Args:  cobra.ArbitraryArgs,
		RunE:  notifyReadCommand,
	}
	read.Flags().Bool("all", false, "Mark every unread notification read")
	cmd.AddCommand(read)

	return cmd
}

func notifySendCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	kind, _ := cmd.Flags().GetString("type")
	switch models.NotificationType(kind) {
	case models.NotifyInfo, models.NotifyWarning, models.NotifyError, models.NotifyQuestion, models.NotifyComplete:
	default:
		return fmt.Errorf("invalid type %q, must be one of: info, warning, error, question, complete", kind)
	}
	from, _ := cmd.Flags().GetString("from")
	if from == "" {
		from = defaultSender()
	}
	to, _ := cmd.Flags().GetString("to")

	id, ok := a.store.AddNotification(models.NotificationType(kind), from, strings.Join(args, " "), to)
	if !ok {
		return fmt.Errorf("could not save the notification to %s", a.store.Path())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Notification %s sent\n", id)
	return nil
}

func notifyListCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	to, _ := cmd.Flags().GetString("to")
	out := cmd.OutOrStdout()

	unread := a.store.UnreadNotifications(to)
	if len(unread) == 0 {
		fmt.Fprintln(out, "No unread notifications")
		return nil
	}
	for _, n := range unread {
		fmt.Fprintf(out, "%s %-8s %s -> %s: %s\n", n.ID, notificationColor(n.Type), n.From, n.To, n.Message)
	}
	return nil
}

func notifyReadCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	all, _ := cmd.Flags().GetBool("all")
	if all == (len(args) > 0) {
		return fmt.Errorf("give notification ids or --all\nHint: ada notify list")
	}

	var n int
	if all {
		n = a.store.MarkNotificationsWhere(func(models.Notification) bool { return true })
	} else {
		n = a.store.MarkNotificationsRead(args)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d notification(s) marked read\n", n)
	return nil
}

func notificationColor(t models.NotificationType) string {
	switch t {
	case models.NotifyWarning:
		return color.YellowString("%s", string(t))
	case models.NotifyError:
		return color.RedString("%s", string(t))
	case models.NotifyComplete:
		return color.GreenString("%s", string(t))
	case models.NotifyQuestion:
		return color.CyanString("%s", string(t))
	}
	return string(t)
}

// NewLockCommand creates the lock command group
func NewLockCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Take or release an advisory file lock for a session",
		Long: `Advisory locks live in the shared status document. Only a session that
is registered as active can take a lock; a lock older than lock_timeout is
force-released on the next acquire attempt.

The session defaults to $ADA_SESSION_ID, which every launched agent has.`,
	}
	cmd.PersistentFlags().String("session", "", "Session id (default: $ADA_SESSION_ID)")

	cmd.AddCommand(&cobra.Command{
		Use:   "acquire <path>",
		Short: "Take the lock on path",
		Args:  cobra.ExactArgs(1),
		RunE:  lockAcquireCommand,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "release <path>",
		Short: "Release the lock on path",
		Args:  cobra.ExactArgs(1),
		RunE:  lockReleaseCommand,
	})

	return cmd
}

func lockSession(cmd *cobra.Command) (string, error) {
	id, _ := cmd.Flags().GetString("session")
	if id == "" {
		id = os.Getenv(agent.EnvSessionID)
	}
	if id == "" {
		return "", fmt.Errorf("no session id\nHint: pass --session or run inside an agent session")
	}
	return id, nil
}

func lockAcquireCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	id, err := lockSession(cmd)
	if err != nil {
		return err
	}
	if !a.store.AcquireLock(id, args[0]) {
		holder := a.store.LockHolder(args[0])
		if holder != "" && holder != id {
			return fmt.Errorf("%s is locked by %s", args[0], holder)
		}
		return fmt.Errorf("lock on %s refused\nHint: session %s must be active (ada sessions)", args[0], id)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Locked %s for %s\n", args[0], id)
	return nil
}

func lockReleaseCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	id, err := lockSession(cmd)
	if err != nil {
		return err
	}
	if !a.store.ReleaseLock(id, args[0]) {
		return fmt.Errorf("%s is not locked by %s", args[0], id)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Released %s\n", args[0])
	return nil
}
