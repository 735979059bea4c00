package datasource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"fronteira/middleware/sentinela/application"
	"fronteira/middleware/sentinela/domain"
)

// RuleSet é o formato do arquivo de regras.
type RuleSet struct {
	Flow      []domain.FlowRule      `yaml:"flow,omitempty"`
	Degrade   []domain.DegradeRule   `yaml:"degrade,omitempty"`
	System    []domain.SystemRule    `yaml:"system,omitempty"`
	Authority []domain.AuthorityRule `yaml:"authority,omitempty"`
}

// Parse decodifica o YAML; campos desconhecidos são erro.
func Parse(data []byte) (RuleSet, error) {
	var rs RuleSet
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rs); err != nil && !errors.Is(err, io.EOF) {
		return RuleSet{}, fmt.Errorf("parse rules: %w", err)
	}
	return rs, nil
}

// Validate checa todas as seções antes de qualquer carga.
func (rs RuleSet) Validate() error {
	var errs error
	for _, r := range rs.Flow {
		errs = multierr.Append(errs, r.WithDefaults().Validate())
	}
	for _, r := range rs.Degrade {
		errs = multierr.Append(errs, r.WithDefaults().Validate())
	}
	for _, r := range rs.System {
		errs = multierr.Append(errs, r.Validate())
	}
	for _, r := range rs.Authority {
		errs = multierr.Append(errs, r.Validate())
	}
	return errs
}

// Apply valida o conjunto inteiro e troca as regras de todos os managers.
// Se alguma regra for inválida nada é trocado.
func Apply(g *application.Guard, rs RuleSet) error {
	if err := rs.Validate(); err != nil {
		return err
	}
	return multierr.Combine(
		g.FlowRules().LoadRules(rs.Flow),
		g.DegradeRules().LoadRules(rs.Degrade),
		g.SystemRules().LoadRules(rs.System),
		g.AuthorityRules().LoadRules(rs.Authority),
	)
}

// Current devolve as regras carregadas hoje na Guard.
func Current(g *application.Guard) RuleSet {
	return RuleSet{
		Flow:      g.FlowRules().Rules(),
		Degrade:   g.DegradeRules().Rules(),
		System:    g.SystemRules().Rules(),
		Authority: g.AuthorityRules().Rules(),
	}
}

// Marshal serializa no mesmo formato aceito por Parse.
func Marshal(rs RuleSet) ([]byte, error) {
	return yaml.Marshal(rs)
}

// FileSource lê um arquivo de regras e acompanha mudanças por mtime/tamanho.
type FileSource struct {
	path      string
	g         *application.Guard
	logger    *zap.Logger
	clk       clock.Clock
	pollEvery time.Duration

	mu      sync.Mutex
	modTime time.Time
	size    int64
}

type Option func(*FileSource)

func WithLogger(l *zap.Logger) Option {
	return func(s *FileSource) { s.logger = l }
}

func WithPollEvery(d time.Duration) Option {
	return func(s *FileSource) { s.pollEvery = d }
}

func WithClock(clk clock.Clock) Option {
	return func(s *FileSource) { s.clk = clk }
}

func NewFileSource(path string, g *application.Guard, opts ...Option) *FileSource {
	s := &FileSource{
		path:      path,
		g:         g,
		logger:    zap.NewNop(),
		clk:       clock.New(),
		pollEvery: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("file", path))
	return s
}

func (s *FileSource) Path() string { return s.path }

// Load lê o arquivo e aplica. Em erro as regras atuais ficam.
func (s *FileSource) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fi, err := os.Stat(s.path)
	if err != nil {
		return err
	}
	return s.loadLocked(fi)
}

func (s *FileSource) loadLocked(fi os.FileInfo) error {
	// marca como visto mesmo em erro: o mesmo conteúdo não é relido a cada tick
	s.modTime, s.size = fi.ModTime(), fi.Size()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	rs, err := Parse(data)
	if err != nil {
		return err
	}
	if err := Apply(s.g, rs); err != nil {
		return err
	}
	s.logger.Info("rules file loaded",
		zap.Int("flow", len(rs.Flow)), zap.Int("degrade", len(rs.Degrade)),
		zap.Int("system", len(rs.System)), zap.Int("authority", len(rs.Authority)))
	return nil
}

// poll recarrega se o arquivo mudou desde a última leitura.
func (s *FileSource) poll() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fi, err := os.Stat(s.path)
	if err != nil {
		return false, err
	}
	if fi.ModTime().Equal(s.modTime) && fi.Size() == s.size {
		return false, nil
	}
	return true, s.loadLocked(fi)
}

// Watch verifica o arquivo a cada pollEvery até ctx ser cancelado.
func (s *FileSource) Watch(ctx context.Context) {
	if s.pollEvery <= 0 {
		return
	}
	t := s.clk.Ticker(s.pollEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				changed, err := s.poll()
				if err != nil {
					s.logger.Warn("rules reload failed, keeping previous rules", zap.Error(err))
					continue
				}
				if changed {
					s.logger.Debug("rules file changed")
				}
			}
		}
	}()
}
