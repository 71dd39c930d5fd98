package domain

// ProtocolStats are cumulative, monotonically increasing counters.
type ProtocolStats struct {
	TotalExchanges        int64 `json:"total_exchanges"`
	TotalParticipants     int64 `json:"total_participants"`
	TotalGifts            int64 `json:"total_gifts"`
	TotalValueTransferred int64 `json:"total_value_transferred"`
}

// Add applies a delta in place. On overflow s is left unchanged.
func (s *ProtocolStats) Add(d ProtocolStats) error {
	next := *s
	var err error
	if next.TotalExchanges, err = AddAmounts(s.TotalExchanges, d.TotalExchanges); err != nil {
		return err
	}
	if next.TotalParticipants, err = AddAmounts(s.TotalParticipants, d.TotalParticipants); err != nil {
		return err
	}
	if next.TotalGifts, err = AddAmounts(s.TotalGifts, d.TotalGifts); err != nil {
		return err
	}
	if next.TotalValueTransferred, err = AddAmounts(s.TotalValueTransferred, d.TotalValueTransferred); err != nil {
		return err
	}
	*s = next
	return nil
}
