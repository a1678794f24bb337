package usecase

import (
	"context"
	"errors"
	"testing"
)

func TestSpeechPlaybackUsesFirstVoiceAndFixedProsody(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{voices: []string{"nova", "alloy"}}
	player := &fakePlayer{}
	playback := NewSpeechPlayback(synth, player, nil)

	if err := playback.Speak(context.Background(), "hola mundo"); err != nil {
		t.Fatalf("speak failed: %v", err)
	}

	utterances := synth.snapshotUtterances()
	if len(utterances) != 1 {
		t.Fatalf("expected one utterance, got %d", len(utterances))
	}
	got := utterances[0]
	if got.Text != "hola mundo" || got.Voice != "nova" || got.Pitch != 1 || got.Rate != 1 {
		t.Fatalf("unexpected utterance: %+v", got)
	}
	if len(player.snapshotPlaybacks()) != 1 {
		t.Fatalf("expected playback to start")
	}
}

func TestSpeechPlaybackInterruptsCurrentUtterance(t *testing.T) {
	t.Parallel()

	player := &fakePlayer{}
	playback := NewSpeechPlayback(&fakeSynth{voices: []string{"alloy"}}, player, nil)

	if err := playback.Speak(context.Background(), "uno"); err != nil {
		t.Fatalf("first speak failed: %v", err)
	}
	if err := playback.Speak(context.Background(), "dos"); err != nil {
		t.Fatalf("second speak failed: %v", err)
	}

	playbacks := player.snapshotPlaybacks()
	if len(playbacks) != 2 {
		t.Fatalf("expected two playbacks, got %d", len(playbacks))
	}
	if playbacks[0].stops() != 1 {
		t.Fatalf("expected first utterance to be interrupted")
	}
	if playbacks[1].stops() != 0 {
		t.Fatalf("second utterance should still be playing")
	}

	playback.Stop()
	if playbacks[1].stops() != 1 {
		t.Fatalf("expected stop to interrupt the current utterance")
	}
}

func TestSpeechPlaybackSkipsFinishedUtterance(t *testing.T) {
	t.Parallel()

	player := &fakePlayer{}
	playback := NewSpeechPlayback(&fakeSynth{voices: []string{"alloy"}}, player, nil)

	if err := playback.Speak(context.Background(), "uno"); err != nil {
		t.Fatalf("speak failed: %v", err)
	}
	first := player.snapshotPlaybacks()[0]
	close(first.done)

	if err := playback.Speak(context.Background(), "dos"); err != nil {
		t.Fatalf("speak failed: %v", err)
	}
	if first.stops() != 0 {
		t.Fatalf("finished utterance should not be stopped")
	}
}

func TestSpeechPlaybackUnsupported(t *testing.T) {
	t.Parallel()

	var nilPlayback *SpeechPlayback
	if nilPlayback.Supported() {
		t.Fatalf("nil playback should be unsupported")
	}
	nilPlayback.Stop()

	playback := NewSpeechPlayback(&fakeSynth{voices: []string{"alloy"}}, &fakePlayer{availErr: errors.New("ffplay not found")}, nil)
	if err := playback.Speak(context.Background(), "hola"); !errors.Is(err, ErrPlaybackUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestSpeechPlaybackErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		synth *fakeSynth
	}{
		{name: "no voices", synth: &fakeSynth{}},
		{name: "voice listing", synth: &fakeSynth{voicesErr: errors.New("offline")}},
		{name: "synthesis", synth: &fakeSynth{voices: []string{"alloy"}, err: errors.New("quota")}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			player := &fakePlayer{}
			if err := NewSpeechPlayback(tt.synth, player, nil).Speak(context.Background(), "hola"); err == nil {
				t.Fatalf("expected error")
			}
			if len(player.snapshotPlaybacks()) != 0 {
				t.Fatalf("nothing should play")
			}
		})
	}
}

func TestSpeechPlaybackStopCancelsUtteranceBeingSynthesized(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{voices: []string{"alloy"}, gate: make(chan struct{}), started: make(chan struct{}, 1)}
	player := &fakePlayer{}
	playback := NewSpeechPlayback(synth, player, nil)

	errs := make(chan error, 1)
	go func() {
		errs <- playback.Speak(context.Background(), "hola")
	}()

	<-synth.started
	playback.Stop()
	close(synth.gate)

	if err := <-errs; !errors.Is(err, ErrUtteranceCancelled) {
		t.Fatalf("expected cancelled utterance, got %v", err)
	}
	if len(player.snapshotPlaybacks()) != 0 {
		t.Fatalf("cancelled utterance should not play")
	}

	if err := playback.Speak(context.Background(), "otra vez"); err != nil {
		t.Fatalf("speak after stop failed: %v", err)
	}
	if len(player.snapshotPlaybacks()) != 1 {
		t.Fatalf("expected playback to resume after stop")
	}
}

func TestSpeechPlaybackClose(t *testing.T) {
	t.Parallel()

	player := &fakePlayer{}
	playback := NewSpeechPlayback(&fakeSynth{voices: []string{"alloy"}}, player, nil)
	if err := playback.Speak(context.Background(), "hola"); err != nil {
		t.Fatalf("speak failed: %v", err)
	}

	playback.Close()
	if player.snapshotPlaybacks()[0].stops() != 1 {
		t.Fatalf("expected close to interrupt the current utterance")
	}
	if err := playback.Speak(context.Background(), "hola"); !errors.Is(err, ErrPlaybackClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
	if len(player.snapshotPlaybacks()) != 1 {
		t.Fatalf("nothing should play after close")
	}
}
