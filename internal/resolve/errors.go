package resolve

import (
	"fmt"
	"strings"
	"time"

	"github.com/systmms/credstore/pkg/provider"
)

// SecretUnavailableError is the hard failure: every configured backend was
// exhausted and no servable cached value exists. Attempted lists the
// backends that were actually tried, for diagnostics; the per-backend
// errors never leak individually.
type SecretUnavailableError struct {
	Name      provider.Name
	Attempted []string
}

func (e SecretUnavailableError) Error() string {
	if len(e.Attempted) == 0 {
		return fmt.Sprintf("secret %s unavailable: no backend eligible (all circuits open?)", e.Name)
	}
	return fmt.Sprintf("secret %s unavailable after trying: %s", e.Name, strings.Join(e.Attempted, ", "))
}

// TimeoutError is returned to a waiter whose max-wait bound elapsed before
// the in-flight fetch settled. The fetch itself keeps running; other
// waiters may still get its result.
type TimeoutError struct {
	Name provider.Name
	Wait time.Duration
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for secret %s", e.Wait, e.Name)
}
