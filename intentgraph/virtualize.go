package intentgraph

import (
	"sort"
	"strconv"
)

// Config mirrors the original virtualization layer's defaults: depth 2,
// max 100 intents, summarization on above cluster size 5, 8000 token
// budget.
type Config struct {
	MaxIntents             int
	TraversalDepth         int
	EnableSummarization    bool
	SummarizationThreshold int
	MaxTokens              int
	RelevanceThreshold     float64
}

// DefaultConfig returns the default virtualization tuning.
func DefaultConfig() Config {
	return Config{
		MaxIntents:             100,
		TraversalDepth:         2,
		EnableSummarization:    true,
		SummarizationThreshold: 5,
		MaxTokens:              8000,
		RelevanceThreshold:     0.3,
	}
}

// Summary is a synthetic node standing in for a cluster too large to
// include intent-by-intent.
type Summary struct {
	SummaryID      string
	Description    string
	DominantStatus IntentStatus
	IntentIDs      []string
	ClusterSize    int
	RelevanceScore float64
	CreatedAtS     int64
}

func (s Summary) contains(id string) bool {
	for _, i := range s.IntentIDs {
		if i == id {
			return true
		}
	}
	return false
}

// VirtualNodeID names either an included intent or a summary node.
type VirtualNodeID struct {
	IsSummary bool
	ID        string
}

// VirtualEdge connects two virtual nodes (intents and/or summaries).
type VirtualEdge struct {
	From VirtualNodeID
	To   VirtualNodeID
	Kind EdgeKind
}

// Metadata reports the shape of the virtualization applied.
type Metadata struct {
	OriginalIntentCount    int
	VirtualizedIntentCount int
	SummaryCount           int
	CompressionRatio       float64
}

// VirtualizedView is the bounded graph rendered for a context window.
type VirtualizedView struct {
	Intents  []StorableIntent
	Summaries []Summary
	Edges    []VirtualEdge
	Metadata Metadata
}

// TotalNodeCount is the count of intents plus summaries in the view.
func (v VirtualizedView) TotalNodeCount() int { return len(v.Intents) + len(v.Summaries) }

// CreateVirtualizedView runs the collect→prune→cluster/summarize→edges
// pipeline, bounding the result to at most cfg.MaxIntents nodes and
// estimating tokens per included intent against cfg.MaxTokens.
func CreateVirtualizedView(focal []string, storage *Storage, cfg Config, nowS int64) VirtualizedView {
	neighborhood := collectNeighborhood(focal, storage, cfg.TraversalDepth)
	originalCount := len(neighborhood)

	var kept []string
	if len(neighborhood) > cfg.MaxIntents {
		kept = pruneByScore(neighborhood, storage, focal, cfg, nowS)
	} else {
		kept = neighborhood
	}

	view := VirtualizedView{}
	if cfg.EnableSummarization {
		clusters := clusterConnectedComponents(kept, storage)
		for _, cluster := range clusters {
			if len(cluster) > cfg.SummarizationThreshold {
				view.Summaries = append(view.Summaries, summarizeCluster(cluster, storage, nowS))
			} else {
				for _, id := range cluster {
					if intent, ok := storage.Get(id); ok {
						view.Intents = append(view.Intents, intent)
					}
				}
			}
		}
	} else {
		for _, id := range kept {
			if intent, ok := storage.Get(id); ok {
				view.Intents = append(view.Intents, intent)
			}
		}
	}

	view.Edges = computeVirtualEdges(view.Intents, view.Summaries, storage)

	view.Metadata = Metadata{
		OriginalIntentCount:    originalCount,
		VirtualizedIntentCount: len(view.Intents),
		SummaryCount:           len(view.Summaries),
		CompressionRatio:       compressionRatio(originalCount, view.TotalNodeCount()),
	}
	return enforceTokenBudget(view, cfg)
}

func compressionRatio(original, virtual int) float64 {
	if original == 0 {
		return 1.0
	}
	return float64(virtual) / float64(original)
}

// collectNeighborhood is BFS up to depth from every focal intent,
// deduplicated, in the order first discovered (focal ids first).
func collectNeighborhood(focal []string, storage *Storage, depth int) []string {
	visited := make(map[string]bool)
	var order []string
	type queued struct {
		id   string
		dist int
	}
	queue := make([]queued, 0, len(focal))
	for _, id := range focal {
		if _, ok := storage.Get(id); !ok {
			continue
		}
		if !visited[id] {
			visited[id] = true
			order = append(order, id)
			queue = append(queue, queued{id: id, dist: 0})
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.dist >= depth {
			continue
		}
		for _, nb := range storage.undirectedNeighbors(cur.id) {
			if visited[nb] {
				continue
			}
			if _, ok := storage.Get(nb); !ok {
				continue
			}
			visited[nb] = true
			order = append(order, nb)
			queue = append(queue, queued{id: nb, dist: cur.dist + 1})
		}
	}
	return order
}

// pruneByScore ranks the neighborhood by status weight, recency, and
// distance from the focal set, keeping the top cfg.MaxIntents.
func pruneByScore(ids []string, storage *Storage, focal []string, cfg Config, nowS int64) []string {
	distance := bfsDistances(focal, storage, len(ids)+1)

	type scored struct {
		id    string
		score float64
	}
	out := make([]scored, 0, len(ids))
	for _, id := range ids {
		intent, ok := storage.Get(id)
		if !ok {
			continue
		}
		out = append(out, scored{id: id, score: intentScore(intent, distance[id], nowS)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })

	n := cfg.MaxIntents
	if n > len(out) {
		n = len(out)
	}
	result := make([]string, n)
	for i := 0; i < n; i++ {
		result[i] = out[i].id
	}
	return result
}

func bfsDistances(focal []string, storage *Storage, cap int) map[string]int {
	dist := make(map[string]int, cap)
	queue := make([]string, 0, len(focal))
	for _, id := range focal {
		if _, ok := dist[id]; !ok {
			dist[id] = 0
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, nb := range storage.undirectedNeighbors(cur) {
			if _, ok := dist[nb]; ok {
				continue
			}
			dist[nb] = dist[cur] + 1
			queue = append(queue, nb)
		}
	}
	return dist
}

// intentScore combines status weight, recency, and distance from the
// focal set, matching the original's three scoring inputs.
func intentScore(intent StorableIntent, distance int, nowS int64) float64 {
	weight := defaultStatusWeight(intent.Status)

	ageS := nowS - intent.CreatedAtS
	if ageS < 0 {
		ageS = 0
	}
	const day = 86400.0
	recency := 1.0 / (1.0 + float64(ageS)/day)

	distancePenalty := 1.0 / (1.0 + float64(distance))

	return weight*0.5 + recency*0.3 + distancePenalty*0.2
}

// clusterConnectedComponents groups ids by undirected connectivity,
// restricted to edges between ids both present in the set.
func clusterConnectedComponents(ids []string, storage *Storage) [][]string {
	inSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		inSet[id] = true
	}
	visited := make(map[string]bool, len(ids))
	var clusters [][]string
	for _, id := range ids {
		if visited[id] {
			continue
		}
		var component []string
		queue := []string{id}
		visited[id] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			component = append(component, cur)
			for _, nb := range storage.undirectedNeighbors(cur) {
				if !inSet[nb] || visited[nb] {
					continue
				}
				visited[nb] = true
				queue = append(queue, nb)
			}
		}
		clusters = append(clusters, component)
	}
	return clusters
}

// summarizeCluster folds a cluster larger than the summarization
// threshold into one synthetic node, carrying the cluster's dominant
// status and member ids.
func summarizeCluster(cluster []string, storage *Storage, nowS int64) Summary {
	statusCounts := make(map[IntentStatus]int)
	var goals []string
	for _, id := range cluster {
		if intent, ok := storage.Get(id); ok {
			statusCounts[intent.Status]++
			if intent.Goal != "" {
				goals = append(goals, intent.Goal)
			}
		}
	}
	dominant := Active
	best := -1
	for status, count := range statusCounts {
		if count > best {
			best = count
			dominant = status
		}
	}

	description := "cluster of " + strconv.Itoa(len(cluster)) + " intents"
	if len(goals) > 0 {
		description = goals[0]
		if len(goals) > 1 {
			description += " (+" + strconv.Itoa(len(goals)-1) + " more)"
		}
	}

	return Summary{
		SummaryID:      "cluster_" + strconv.Itoa(hashIDs(cluster)),
		Description:    description,
		DominantStatus: dominant,
		IntentIDs:      append([]string(nil), cluster...),
		ClusterSize:    len(cluster),
		RelevanceScore: 0.8,
		CreatedAtS:     nowS,
	}
}

func hashIDs(ids []string) int {
	h := 2166136261
	for _, id := range ids {
		for _, c := range id {
			h = (h ^ int(c)) * 16777619
		}
	}
	if h < 0 {
		h = -h
	}
	return h
}

// computeVirtualEdges emits an edge between every pair of included intents
// connected in the original graph, and between each included intent and
// any summary that contains it.
func computeVirtualEdges(intents []StorableIntent, summaries []Summary, storage *Storage) []VirtualEdge {
	var edges []VirtualEdge
	for i := 0; i < len(intents); i++ {
		for j := i + 1; j < len(intents); j++ {
			a, b := intents[i], intents[j]
			if storage.HasEdge(a.IntentID, b.IntentID) {
				edges = append(edges, VirtualEdge{
					From: VirtualNodeID{ID: a.IntentID},
					To:   VirtualNodeID{ID: b.IntentID},
					Kind: DependsOn,
				})
			} else if storage.HasEdge(b.IntentID, a.IntentID) {
				edges = append(edges, VirtualEdge{
					From: VirtualNodeID{ID: b.IntentID},
					To:   VirtualNodeID{ID: a.IntentID},
					Kind: DependsOn,
				})
			}
		}
	}
	for _, intent := range intents {
		for _, summary := range summaries {
			if summary.contains(intent.IntentID) {
				edges = append(edges, VirtualEdge{
					From: VirtualNodeID{ID: intent.IntentID},
					To:   VirtualNodeID{IsSummary: true, ID: summary.SummaryID},
					Kind: RelatedTo,
				})
			}
		}
	}
	return edges
}

// enforceTokenBudget trims intents (oldest-scored first, i.e. from the
// tail) until the estimated token count fits cfg.MaxTokens, when set.
func enforceTokenBudget(view VirtualizedView, cfg Config) VirtualizedView {
	if cfg.MaxTokens <= 0 {
		return view
	}
	total := 0
	for _, intent := range view.Intents {
		total += estimateTokens(intent)
	}
	for total > cfg.MaxTokens && len(view.Intents) > 0 {
		last := view.Intents[len(view.Intents)-1]
		total -= estimateTokens(last)
		view.Intents = view.Intents[:len(view.Intents)-1]
	}
	view.Metadata.VirtualizedIntentCount = len(view.Intents)
	view.Metadata.CompressionRatio = compressionRatio(view.Metadata.OriginalIntentCount, view.TotalNodeCount())
	return view
}
