package council

// Request describes one deliberation. Everything but Content is optional;
// omitted fields fall back to the orchestrator's configured defaults.
type Request struct {
	Content       string   `json:"content" binding:"required"`
	Credential    string   `json:"api_key,omitempty"`
	CouncilModels []string `json:"council_models,omitempty"`
	ChairmanModel string   `json:"chairman_model,omitempty"`
	GenerateTitle bool     `json:"generate_title,omitempty"`

	// TraceID correlates status queries with an in-flight deliberation.
	// Empty means no status is recorded.
	TraceID string `json:"-"`
}

// Stage1Result is a single model's independent answer.
type Stage1Result struct {
	Model    string `json:"model"`
	Response string `json:"response"`
}

// Stage2Result is a model's ranking of the anonymized answers. Ranking is
// the full raw text; ParsedRanking the extracted label sequence.
type Stage2Result struct {
	Model         string   `json:"model"`
	Ranking       string   `json:"ranking"`
	ParsedRanking []string `json:"parsed_ranking"`
}

// Stage3Result is the chairman's final synthesis.
type Stage3Result struct {
	Model    string `json:"model"`
	Response string `json:"response"`
}

// AggregateRanking is a model's mean rank position across all peer
// rankings. Lower is better.
type AggregateRanking struct {
	Model         string  `json:"model"`
	AverageRank   float64 `json:"average_rank"`
	RankingsCount int     `json:"rankings_count"`
}

// Metadata carries the de-anonymization mapping and aggregate scores of a
// deliberation round.
type Metadata struct {
	LabelToModel      map[string]string  `json:"label_to_model"`
	AggregateRankings []AggregateRanking `json:"aggregate_rankings"`
}

// Result is the complete outcome of a deliberation.
type Result struct {
	Stage1   []Stage1Result `json:"stage1"`
	Stage2   []Stage2Result `json:"stage2"`
	Stage3   Stage3Result   `json:"stage3"`
	Metadata Metadata       `json:"metadata"`
	Title    string         `json:"title,omitempty"`
}
