// Package cli implements the medipal sub-commands.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Medi-Pal/medipal/internal/app"
	"github.com/Medi-Pal/medipal/internal/config"
	apperrors "github.com/Medi-Pal/medipal/internal/errors"
	"github.com/Medi-Pal/medipal/internal/reminder"
	"github.com/Medi-Pal/medipal/internal/security"
	"github.com/Medi-Pal/medipal/internal/store"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var Version = "dev"

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Width(22).Foreground(lipgloss.Color("8"))
	onStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	offStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// ErrUsage is returned when a command is called with the wrong arguments;
// the usage text has already been printed
var ErrUsage = errors.New("invalid usage")

// ==================== Login ====================

// HandleLoginCommand signs the patient in with a one-time password.
// The code is read from args or prompted for.
func HandleLoginCommand(ctx context.Context, a *app.App, args []string, in io.Reader, out io.Writer) error {
	if len(args) < 1 {
		fmt.Fprintln(out, "Usage: medipal login <phone> [otp]")
		return ErrUsage
	}
	if err := a.Config.RequireRemote(); err != nil {
		return err
	}
	phone, err := security.NormalizePhone(args[0])
	if err != nil {
		return err
	}

	var code string
	if len(args) > 1 {
		code = args[1]
	} else {
		if err := a.Remote.SendOTP(ctx, phone); err != nil {
			return err
		}
		fmt.Fprintf(out, "A code was sent to %s\n", phone)

		code, err = promptSecret(in, out, "Code: ")
		if err != nil {
			return err
		}
	}
	if code == "" {
		return apperrors.New(apperrors.ErrBadRequest.Code, "otp is required")
	}

	sess, err := a.Remote.VerifyOTP(ctx, phone, code)
	if err != nil {
		return err
	}
	if err := a.Sessions.Save(*sess); err != nil {
		return apperrors.ErrPersistFailed.WithCause(err)
	}
	user := sess.User
	if err := a.Store.SaveUser(ctx, &user); err != nil {
		return apperrors.ErrPersistFailed.WithCause(err)
	}

	fmt.Fprintf(out, "✓ Signed in as %s\n", displayUser(user))
	return nil
}

// HandleLogoutCommand drops the backend session and the current user
func HandleLogoutCommand(ctx context.Context, a *app.App, out io.Writer) error {
	if err := a.Sessions.Clear(); err != nil {
		return err
	}
	if err := a.Store.SignOut(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "✓ Signed out")
	return nil
}

// promptSecret reads one line, hiding the echo when in is a terminal
func promptSecret(in io.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func displayUser(u store.User) string {
	if u.Name == "" {
		return u.PhoneNumber
	}
	return fmt.Sprintf("%s (%s)", u.Name, u.PhoneNumber)
}

// ==================== Sync ====================

// HandleSyncCommand replaces the local cache with the backend prescriptions
func HandleSyncCommand(ctx context.Context, a *app.App, out io.Writer) error {
	if err := a.Config.RequireRemote(); err != nil {
		return err
	}
	n, err := a.Prescriptions.Sync(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Synced %d prescription(s)\n", n)
	return nil
}

// ==================== Times ====================

// HandleTimesCommand shows or changes the per-slot reminder times
func HandleTimesCommand(a *app.App, args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "get" || args[0] == "list" {
		all, err := a.Times.All()
		if err != nil {
			return err
		}
		for _, slot := range reminder.Slots {
			fmt.Fprintf(out, "%-10s %s\n", slot.Title(), all[slot])
		}
		return nil
	}

	if args[0] != "set" || len(args) < 3 {
		PrintTimesHelp(out)
		return ErrUsage
	}

	slot, err := reminder.ParseSlot(args[1])
	if err != nil {
		return apperrors.ErrBadRequest.WithCause(err)
	}
	hour, minute, err := parseClock(args[2])
	if err != nil {
		return apperrors.ErrBadRequest.WithCause(err)
	}
	if err := a.Times.Set(slot, hour, minute); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ %s reminders at %s\n", slot.Title(), reminder.FormatTime(hour, minute))
	return nil
}

// parseClock reads a 24 hour "HH:MM" value
func parseClock(s string) (int, int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("hour must be 0-23, got %q", h)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("minute must be 0-59, got %q", m)
	}
	return hour, minute, nil
}

// ==================== Status ====================

// HandleStatusCommand prints the signed-in user, reminder times and the
// reminder flag of every cached prescription
func HandleStatusCommand(ctx context.Context, a *app.App, out io.Writer) error {
	user, err := a.Store.CurrentUser(ctx)
	if err != nil {
		return err
	}
	list, err := a.Store.ListPrescriptions(ctx)
	if err != nil {
		return err
	}
	contacts, err := a.Store.ListContacts(ctx)
	if err != nil {
		return err
	}
	times, err := a.Times.All()
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("MediPal "+Version) + "\n\n")

	signedIn := offStyle.Render("not signed in")
	if user != nil {
		signedIn = onStyle.Render(displayUser(*user))
	}
	b.WriteString(row("User", signedIn))
	b.WriteString(row("Backend", valueOr(a.Config.Remote.BaseURL, "not configured")))
	b.WriteString(row("Emergency contacts", strconv.Itoa(len(contacts))))
	b.WriteString("\n" + titleStyle.Render("Reminder times") + "\n")
	for _, slot := range reminder.Slots {
		b.WriteString(row(slot.Title(), times[slot].String()))
	}

	b.WriteString("\n" + titleStyle.Render(fmt.Sprintf("Prescriptions (%d)", len(list))) + "\n")
	for _, p := range list {
		enabled, err := a.Flags.IsEnabled(p.ID)
		if err != nil {
			return err
		}
		state := offStyle.Render("reminders off")
		if enabled {
			state = onStyle.Render("reminders on")
		}
		b.WriteString(row(p.ID, fmt.Sprintf("%s  %s", medicineNames(p), state)))
	}

	fmt.Fprint(out, b.String())
	return nil
}

func row(label, value string) string {
	return labelStyle.Render(label) + value + "\n"
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func medicineNames(p store.Prescription) string {
	names := make([]string, 0, len(p.Medicines))
	for _, m := range p.Medicines {
		names = append(names, m.DisplayName())
	}
	return strings.Join(names, ", ")
}

// ==================== Restore ====================

// HandleRestoreCommand runs the boot-time restore against the cache and
// lists what it armed
func HandleRestoreCommand(ctx context.Context, a *app.App, out io.Writer) error {
	report := a.Boot(ctx)
	fmt.Fprintf(out, "Scanned %d, restored %d, skipped %d, failed %d\n",
		report.Scanned, report.Restored, report.Skipped, report.Failed)
	for _, e := range report.Errors {
		fmt.Fprintf(out, "  ✗ %s\n", e)
	}

	pending := a.Scheduler.Pending()
	sort.Slice(pending, func(i, j int) bool { return pending[i].FireAt.Before(pending[j].FireAt) })
	for _, job := range pending {
		fmt.Fprintf(out, "  %s  %s  %s\n", job.FireAt.Format("Mon 15:04"), job.Payload.MedicineName, job.Payload.Dosage)
	}
	return nil
}

// ==================== Contacts ====================

// HandleContactsCommand lists, adds or removes emergency contacts
func HandleContactsCommand(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "list" || args[0] == "ls" {
		contacts, err := a.Store.ListContacts(ctx)
		if err != nil {
			return err
		}
		if len(contacts) == 0 {
			fmt.Fprintln(out, "No emergency contacts. Add one with: medipal contacts add <name> <phone>")
			return nil
		}
		for _, c := range contacts {
			fmt.Fprintf(out, "%s  %-20s %s\n", c.ID, c.Name, c.PhoneNumber)
		}
		return nil
	}

	switch args[0] {
	case "add":
		if len(args) < 3 {
			fmt.Fprintln(out, "Usage: medipal contacts add <name> <phone>")
			return ErrUsage
		}
		if err := security.ValidateName("name", args[1]); err != nil {
			return err
		}
		phone, err := security.NormalizePhone(args[2])
		if err != nil {
			return err
		}
		c := &store.EmergencyContact{Name: strings.TrimSpace(args[1]), PhoneNumber: phone}
		if err := a.Store.AddContact(ctx, c); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Added %s (%s)\n", c.Name, c.ID)
	case "rm", "remove", "delete":
		if len(args) < 2 {
			fmt.Fprintln(out, "Usage: medipal contacts rm <id>")
			return ErrUsage
		}
		if err := a.Store.DeleteContact(ctx, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Removed %s\n", args[1])
	default:
		PrintContactsHelp(out)
		return ErrUsage
	}
	return nil
}

// ==================== Config ====================

// HandleConfigCommand writes or locates the config file
func HandleConfigCommand(args []string, configPath, dataDir string, out io.Writer) error {
	if dataDir == "" {
		dataDir = config.GetDefaultDataDir()
	}
	if configPath == "" {
		configPath = config.DefaultConfigPath(dataDir)
	}

	if len(args) == 0 {
		PrintConfigHelp(out)
		return nil
	}

	switch args[0] {
	case "init":
		if _, err := os.Stat(configPath); err == nil {
			fmt.Fprintf(out, "Config already exists at %s\n", configPath)
			return nil
		}
		if err := config.WriteDefault(configPath, dataDir); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Wrote %s\n", configPath)
	case "path":
		fmt.Fprintln(out, configPath)
	default:
		PrintConfigHelp(out)
		return ErrUsage
	}
	return nil
}
