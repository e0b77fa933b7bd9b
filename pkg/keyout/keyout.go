package keyout

import (
	"fmt"

	"github.com/bendahl/uinput"
	"github.com/rs/zerolog"

	"github.com/opencontroller/padbridge/pkg/flow"
	"github.com/opencontroller/padbridge/pkg/log"
	"github.com/opencontroller/padbridge/pkg/mapping"
	"github.com/opencontroller/padbridge/pkg/types"
)

// Keyboard is the subset of the uinput virtual keyboard the sink needs,
// kept as an interface so tests can substitute a recorder.
type Keyboard interface {
	KeyDown(key int) error
	KeyUp(key int) error
	Close() error
}

// Sink consumes keyboard mapping outputs and replays them on a virtual
// keyboard. It terminates when its input queue closes, releasing any key
// still down so nothing stays stuck after shutdown.
type Sink struct {
	kb     Keyboard
	held   map[int]bool
	doneCh chan struct{}
	logger zerolog.Logger
}

// New creates a sink over a uinput virtual keyboard.
func New() (*Sink, error) {
	kb, err := uinput.CreateKeyboard("/dev/uinput", []byte("padbridge"))
	if err != nil {
		return nil, fmt.Errorf("create virtual keyboard: %w", err)
	}
	return NewWithKeyboard(kb), nil
}

// NewWithKeyboard creates a sink over a caller-supplied keyboard.
func NewWithKeyboard(kb Keyboard) *Sink {
	return &Sink{
		kb:     kb,
		held:   make(map[int]bool),
		doneCh: make(chan struct{}),
		logger: log.WithComponent("keyout"),
	}
}

// Start launches the consume loop over the keyboard output sink.
func (s *Sink) Start(in *flow.Queue[mapping.Output]) {
	go s.run(in)
}

// Done is closed once the sink has drained its input and closed the
// virtual keyboard.
func (s *Sink) Done() <-chan struct{} {
	return s.doneCh
}

func (s *Sink) run(in *flow.Queue[mapping.Output]) {
	defer func() {
		s.releaseAll()
		if err := s.kb.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("virtual keyboard close failed")
		}
		close(s.doneCh)
		s.logger.Info().Msg("key sink stopped")
	}()

	for out := range in.C() {
		for _, ke := range out.Keys {
			s.apply(ke)
		}
	}
}

func (s *Sink) apply(ke types.KeyEvent) {
	var err error
	if ke.Press {
		err = s.kb.KeyDown(ke.Code)
		s.held[ke.Code] = true
	} else {
		err = s.kb.KeyUp(ke.Code)
		delete(s.held, ke.Code)
	}
	if err != nil {
		s.logger.Warn().Err(err).Int("key", ke.Code).Bool("press", ke.Press).Msg("keystroke failed")
	}
}

func (s *Sink) releaseAll() {
	for code := range s.held {
		if err := s.kb.KeyUp(code); err != nil {
			s.logger.Warn().Err(err).Int("key", code).Msg("release on shutdown failed")
		}
	}
	s.held = make(map[int]bool)
}
