// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fd1az/genip/business/wallet/domain"
)

var (
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Width(10)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	badStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	addressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#60A5FA"))
)

// WalletPanel renders the connection state against the required chain.
type WalletPanel struct {
	Chain   domain.ChainDescriptor
	State   domain.ConnectionState
	Spinner string
}

func (w WalletPanel) View() string {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render("WALLET"))
	sb.WriteString("\n\n")

	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(label))
		sb.WriteString(value)
		sb.WriteString("\n")
	}

	st := w.State
	switch {
	case st.IsConnecting:
		row("Status", warnStyle.Render(w.Spinner+" Connecting..."))
	case st.IsConnected:
		row("Status", okStyle.Render("● Connected"))
	default:
		row("Status", badStyle.Render("○ Disconnected"))
	}

	if st.IsConnected {
		row("Account", addressStyle.Render(st.FormatAddress(domain.DefaultAddressChars)))
		row("Network", w.network())
		row("Balance", fmt.Sprintf("%s %s", st.Balance, w.Chain.NativeCurrency.Symbol))
	} else {
		row("Network", mutedStyle.Render(fmt.Sprintf("requires %s (%d)", w.Chain.Name, w.Chain.ID)))
	}

	return sb.String()
}

func (w WalletPanel) network() string {
	st := w.State
	if st.ChainID == nil {
		return warnStyle.Render("unknown")
	}
	if st.IsCorrectNetwork {
		return okStyle.Render(fmt.Sprintf("%s (%d)", w.Chain.Name, *st.ChainID))
	}
	return badStyle.Render(fmt.Sprintf("Wrong network: chain %d, press s to switch to %d", *st.ChainID, w.Chain.ID))
}
