package main

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"

	"epics/internal/domain"
	"epics/internal/session"
)

// printNotice writes a notice to the terminal in its kind's style.
func printNotice(n domain.Notice) {
	msg := n.Message
	if n.Link != "" {
		msg += " " + n.Link
	}
	switch n.Kind {
	case domain.NoticeSuccess:
		pterm.Success.Println(msg)
	case domain.NoticeWarning:
		pterm.Warning.Println(msg)
	case domain.NoticeError:
		pterm.Error.Println(msg)
	default:
		pterm.Info.Println(msg)
	}
}

func printStatus(s session.Snapshot) error {
	pterm.DefaultSection.Println("The Epics")

	account := "not connected"
	if s.Connected() {
		account = s.Account
	}
	live := "no"
	if s.Subscribed {
		live = "yes"
	}

	data := pterm.TableData{
		{"Account", account},
		{"Minted", fmt.Sprintf("%d / %d", s.Minted, s.MaxSupply)},
		{"Mint", s.MintPhase.String()},
		{"Owned", strconv.Itoa(len(s.Tokens))},
		{"Live updates", live},
		{"Link", s.MintLink},
	}
	if s.TxURL != "" {
		data = append(data, []string{"Transaction", s.TxURL})
	}
	return pterm.DefaultTable.WithHasHeader(false).WithData(data).Render()
}

func printGallery(s session.Snapshot) error {
	pterm.DefaultSection.Println("Your Epics")
	if len(s.Tokens) == 0 {
		pterm.Info.Println("You have not minted an Epic yet.")
		return nil
	}

	data := pterm.TableData{{"Token", "Link"}}
	for _, t := range s.Tokens {
		data = append(data, []string{"#" + strconv.FormatInt(t.ID, 10), t.URL})
	}
	return pterm.DefaultTable.WithHasHeader(true).WithData(data).Render()
}
