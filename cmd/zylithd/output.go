package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"shieldedamm/internal/notes"
)

type noteView struct {
	Commitment string  `json:"commitment"`
	Asset      string  `json:"asset"`
	Amount     string  `json:"amount"`
	TreeIndex  *uint64 `json:"tree_index,omitempty"`
	Reserved   bool    `json:"reserved,omitempty"`
}

func viewNote(n *notes.Note) noteView {
	if n == nil {
		return noteView{}
	}
	return noteView{
		Commitment: n.CommitmentHex(),
		Asset:      n.AssetID,
		Amount:     n.Amount.String(),
		TreeIndex:  n.TreeIndex,
	}
}

func (v noteView) index() string {
	if v.TreeIndex == nil {
		return "-"
	}
	return fmt.Sprint(*v.TreeIndex)
}

// emit prints v as JSON, or runs text when JSON output is off.
func (a *app) emit(w io.Writer, v interface{}, text func(w io.Writer)) error {
	if a.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func printNotes(w io.Writer, vs []noteView) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMMITMENT\tASSET\tAMOUNT\tINDEX\tRESERVED")
	for _, v := range vs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\n", v.Commitment, v.Asset, v.Amount, v.index(), v.Reserved)
	}
	tw.Flush()
}
