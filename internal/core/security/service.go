package security

import (
	"log/slog"
)

// ProcessResult はサニタイズ + インジェクション検査の結果
type ProcessResult struct {
	Sanitized string
	Blocked   bool
	Verdict   Verdict
}

// Service は質問・メモなどの自由入力テキストを検証する単一の入口
type Service struct {
	detector  *Detector
	maxLength int
	logger    *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithLogger は Service にロガーを設定する
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は新しい Service を作成する
func NewService(detector *Detector, maxLength int, opts ...ServiceOption) *Service {
	svc := &Service{
		detector:  detector,
		maxLength: maxLength,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// Process はサニタイズと検査を合成してリクエスト検証に提供する
// スコアが1以上になった呼び出しはすべて警告ログに残す（入力の全文は残さない）
func (s *Service) Process(input string) ProcessResult {
	sanitized := Sanitize(input, s.maxLength)
	verdict := s.detector.Detect(sanitized)

	if verdict.RiskScore > 0 {
		s.logger.Warn("potential prompt injection detected",
			"riskScore", verdict.RiskScore,
			"matchedPatterns", verdict.MatchedPatterns,
			"inputPreview", Preview(sanitized),
		)
	}

	return ProcessResult{
		Sanitized: sanitized,
		Blocked:   verdict.IsBlocked,
		Verdict:   verdict,
	}
}

// MaxLength は設定されている最大入力長を返す
func (s *Service) MaxLength() int {
	return s.maxLength
}
