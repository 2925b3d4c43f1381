package backtest

import "github.com/google/uuid"

// generatePositionID mints a venue-local position identifier.
func generatePositionID() string { return "P-" + uuid.NewString() }

// generateVenueOrderID mints a venue-assigned order identifier, distinct
// from the strategy-assigned ClientOrderID.
func generateVenueOrderID() string { return "O-" + uuid.NewString() }
