package routing

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/orderstack/fulfillment-core/pkg/config"
	"github.com/orderstack/fulfillment-core/pkg/db/models"
)

const earthRadiusKm = 6371.0

// haversineKm returns the great-circle distance between two coordinates.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

type candidate struct {
	seller     models.Seller
	distanceKm float64
	priceCents int64
	score      float64
}

// rankCandidates orders candidates best-first on a weighted blend of
// proximity, total price, and reliability. Distance and price are normalized
// against the worst candidate so each term lands in [0, 1]. Ties break on
// seller id ascending so the result is deterministic for a given catalog.
func rankCandidates(cfg config.RoutingConfig, buyer models.Buyer, candidates []candidate) []candidate {
	if len(candidates) == 0 {
		return candidates
	}

	var maxDist, maxPrice float64
	for i := range candidates {
		candidates[i].distanceKm = haversineKm(
			buyer.Latitude, buyer.Longitude,
			candidates[i].seller.Latitude, candidates[i].seller.Longitude,
		)
		maxDist = math.Max(maxDist, candidates[i].distanceKm)
		maxPrice = math.Max(maxPrice, float64(candidates[i].priceCents))
	}

	for i := range candidates {
		distScore := 1.0
		if maxDist > 0 {
			distScore = 1 - candidates[i].distanceKm/maxDist
		}
		priceScore := 1.0
		if maxPrice > 0 {
			priceScore = 1 - float64(candidates[i].priceCents)/maxPrice
		}
		candidates[i].score = cfg.DistanceWeight*distScore +
			cfg.PriceWeight*priceScore +
			cfg.ReliabilityWeight*candidates[i].seller.Reliability
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return lessUUID(candidates[i].seller.ID, candidates[j].seller.ID)
	})
	return candidates
}

func lessUUID(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
