package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// startingBalance reads the paper balance from KRAIT_BALANCE, defaulting to
// 10000 quote units.
func startingBalance() (float64, error) {
	raw := os.Getenv("KRAIT_BALANCE")
	if raw == "" {
		return 10000, nil
	}
	balance, err := strconv.ParseFloat(raw, 64)
	if err != nil || balance <= 0 {
		return 0, fmt.Errorf("invalid KRAIT_BALANCE %q", raw)
	}
	return balance, nil
}

func nowUTC() time.Time { return time.Now().UTC() }
