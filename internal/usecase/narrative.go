package usecase

import (
	"sort"
	"strings"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
)

// narrativeRule matches trending items into one bucket. Rules are applied
// in order; the first match wins.
type narrativeRule struct {
	label    string
	keywords []string // matched against lowercased name and symbol
}

// The taxonomy is fixed and priority-ordered: more specific narratives
// first, catch-alls later.
var narrativeRules = []narrativeRule{
	{label: "AI & Big Data", keywords: []string{"ai", "gpt", "neural", "intelligence", "data", "render", "graph"}},
	{label: "Meme Coins", keywords: []string{"doge", "shib", "pepe", "inu", "floki", "bonk", "wif", "meme"}},
	{label: "DeFi", keywords: []string{"swap", "uni", "aave", "maker", "curve", "compound", "lido", "defi", "dex"}},
	{label: "Layer 1", keywords: []string{"sol", "ada", "avax", "near", "apt", "sui", "ton", "dot", "atom"}},
	{label: "Layer 2 & Scaling", keywords: []string{"arb", "op", "matic", "polygon", "zk", "stark", "base", "rollup"}},
	{label: "Gaming & Metaverse", keywords: []string{"game", "play", "sand", "mana", "axs", "imx", "gala", "metaverse"}},
	{label: "RWA & Payments", keywords: []string{"xrp", "xlm", "rwa", "ondo", "pay", "remit"}},
}

const defaultBucket = "Emerging Trends"

// sentiment threshold bands over 24h price change, in percent.
const (
	strongUpBand   = 10.0
	mildUpBand     = 3.0
	mildDownBand   = -3.0
	strongDownBand = -10.0
)

// NarrativeClassifier buckets trending items into a fixed taxonomy, derives
// sentiment, and ranks buckets by money flow. The whole pass is pure:
// identical input always yields identical output.
type NarrativeClassifier struct {
	clock   drepo.Clock
	topK    int
	damping float64 // momentum multiplier when mean change is not positive
}

func NewNarrativeClassifier(clock drepo.Clock, topK int, damping float64) *NarrativeClassifier {
	if clock == nil {
		clock = drepo.SystemClock{}
	}
	if topK <= 0 {
		topK = 5
	}
	if damping <= 0 || damping >= 1 {
		damping = 0.3
	}
	return &NarrativeClassifier{clock: clock, topK: topK, damping: damping}
}

// Classify assigns every item to exactly one bucket, aggregates the
// groups, and returns the top-K by money-flow score.
func (n *NarrativeClassifier) Classify(items []*models.TrendingItem) []*models.NarrativeGroup {
	if len(items) == 0 {
		return nil
	}

	maxScore := 0.0
	for _, it := range items {
		if it.Score > maxScore {
			maxScore = it.Score
		}
	}

	type agg struct {
		group     *models.NarrativeGroup
		sentiment []models.Sentiment
		order     int // first-seen position, for stable output ordering
	}
	buckets := make(map[string]*agg)
	orderSeen := 0

	now := n.clock.Now()
	for _, it := range items {
		label := bucketFor(it)
		a, ok := buckets[label]
		if !ok {
			a = &agg{
				group: &models.NarrativeGroup{Label: label, ComputedAt: now},
				order: orderSeen,
			}
			orderSeen++
			buckets[label] = a
		}
		g := a.group
		g.Members = append(g.Members, it.Symbol)
		g.TotalVolume += it.Volume24h
		g.TotalMarketCap += it.MarketCap
		g.AvgChange += it.PriceChange24h
		a.sentiment = append(a.sentiment, itemSentiment(it, maxScore))
	}

	groups := make([]*models.NarrativeGroup, 0, len(buckets))
	ordered := make([]*agg, 0, len(buckets))
	for _, a := range buckets {
		ordered = append(ordered, a)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].order < ordered[j].order })

	for _, a := range ordered {
		g := a.group
		g.AvgChange /= float64(len(g.Members))
		g.Sentiment = dominantSentiment(a.sentiment)
		g.MoneyFlowScore = moneyFlow(g.TotalVolume, g.AvgChange, n.damping)
		groups = append(groups, g)
	}

	// rank by money flow; ties resolve by first-seen order (stable sort)
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].MoneyFlowScore > groups[j].MoneyFlowScore
	})
	if len(groups) > n.topK {
		groups = groups[:n.topK]
	}

	// relevance is the money-flow share of the retained groups
	var total float64
	for _, g := range groups {
		total += g.MoneyFlowScore
	}
	for _, g := range groups {
		if total > 0 {
			g.RelevanceScore = g.MoneyFlowScore / total
		}
	}
	return groups
}

// bucketFor returns the first matching rule's label, or the default bucket.
func bucketFor(it *models.TrendingItem) string {
	name := strings.ToLower(it.Name)
	sym := strings.ToLower(it.Symbol)
	for _, rule := range narrativeRules {
		for _, kw := range rule.keywords {
			if strings.Contains(name, kw) || sym == kw {
				return rule.label
			}
		}
	}
	return defaultBucket
}

// itemSentiment derives a base tier from the normalized popularity score
// and shifts it by the 24h change magnitude.
func itemSentiment(it *models.TrendingItem, maxScore float64) models.Sentiment {
	tier := 1 // neutral
	if maxScore > 0 && it.Score/maxScore > 0.66 {
		tier = 2
	} else if maxScore > 0 && it.Score/maxScore < 0.2 {
		tier = 0
	}

	switch {
	case it.PriceChange24h > strongUpBand:
		tier += 2
	case it.PriceChange24h > mildUpBand:
		tier++
	case it.PriceChange24h < strongDownBand:
		tier -= 2
	case it.PriceChange24h < mildDownBand:
		tier--
	}

	switch {
	case tier <= 0:
		return models.SentimentBearish
	case tier == 1:
		return models.SentimentNeutral
	case tier == 2:
		return models.SentimentBullish
	default:
		return models.SentimentEuphoric
	}
}

// dominantSentiment picks the most common sentiment in the group; ties go
// to the more cautious one.
func dominantSentiment(ss []models.Sentiment) models.Sentiment {
	counts := make(map[models.Sentiment]int, 4)
	for _, s := range ss {
		counts[s]++
	}
	order := []models.Sentiment{
		models.SentimentBearish,
		models.SentimentNeutral,
		models.SentimentBullish,
		models.SentimentEuphoric,
	}
	best := models.SentimentNeutral
	bestCount := -1
	for _, s := range order {
		if counts[s] > bestCount {
			best = s
			bestCount = counts[s]
		}
	}
	return best
}

// moneyFlow is the ranking heuristic: volume in millions times a momentum
// multiplier. Full momentum needs a positive mean change; flat and losing
// groups are damped.
func moneyFlow(totalVolume, avgChange, damping float64) float64 {
	momentum := 1.0
	if avgChange <= 0 {
		momentum = damping
	}
	return totalVolume / 1e6 * momentum
}
