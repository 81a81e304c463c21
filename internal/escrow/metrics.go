package escrow

import (
	"context"
	"encoding/json"

	"verida.org/internal/contract"
	"verida.org/internal/obs"
)

// CountCustody is a host observer counting committed custody movements.
func CountCustody(_ context.Context, call contract.Call) {
	if call.Err != nil || call.Contract != string(Namespace) {
		return
	}
	for _, evt := range call.Events {
		reason, ok := custodyReasons[evt.Name]
		if !ok {
			continue
		}
		var rec struct {
			Asset string `json:"asset"`
		}
		if err := json.Unmarshal(evt.Record, &rec); err != nil {
			continue
		}
		obs.CountCustodyTransfer(rec.Asset, reason)
	}
}

var _ contract.Observer = CountCustody
