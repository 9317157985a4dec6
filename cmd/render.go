package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nextlevelbuilder/pairlink/internal/pairing"
)

var (
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	barStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

const progressWidth = 30

// stateRenderer renders a pairing state as one styled line.
type stateRenderer struct {
	out string
}

func renderState(s pairing.State) string {
	var r stateRenderer
	s.Accept(&r)
	return r.out
}

func (r *stateRenderer) EstablishingConnection() {
	r.out = pendingStyle.Render("establishing connection...")
}

func (r *stateRenderer) PairingRequested() {
	r.out = pendingStyle.Render("pairing requested, waiting for peer")
}

func (r *stateRenderer) PairingDecisionRequest() {
	r.out = warnStyle.Render("waiting for decision")
}

func (r *stateRenderer) PairingInProgress(libraryName string) {
	r.out = activeStyle.Render("pairing into " + libraryName)
}

func (r *stateRenderer) InitialSyncProgress(percent int) {
	filled := percent * progressWidth / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", progressWidth-filled)
	r.out = fmt.Sprintf("syncing %s %3d%%", barStyle.Render(bar), percent)
}

func (r *stateRenderer) PairingComplete() {
	r.out = successStyle.Render("pairing complete")
}

func (r *stateRenderer) PairingRejected(cause pairing.Cause) {
	r.out = failureStyle.Render("pairing rejected") + pendingStyle.Render(" ("+string(cause)+")")
}

func (r *stateRenderer) LibraryAlreadyExists() {
	r.out = warnStyle.Render("library already paired")
}
