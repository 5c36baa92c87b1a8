package composer

import "github.com/feedsync/pkg/models"

// Phase is the publication lifecycle of a composer
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseEditing    Phase = "editing"
	PhasePublishing Phase = "publishing"
)

// SaveStatus tracks draft persistence independently of Phase
type SaveStatus string

const (
	SaveIdle   SaveStatus = "idle"
	SaveSaving SaveStatus = "saving"
	SaveSaved  SaveStatus = "saved"
	SaveError  SaveStatus = "error"
)

type publishKind uint8

const (
	publishNone publishKind = iota
	publishOK
	publishFailed
)

// PublishStatus is the outcome of the last publish: none, published with an
// id, or failed with a message. It has no exported fields so a value that
// is both published and failed cannot be built.
type PublishStatus struct {
	kind    publishKind
	id      string
	message string
}

// Published is the status after a successful publish of id
func Published(id string) PublishStatus {
	return PublishStatus{kind: publishOK, id: id}
}

// Failed is the status after a publish that failed with message
func Failed(message string) PublishStatus {
	return PublishStatus{kind: publishFailed, message: message}
}

// IsNone reports whether nothing has been published since the last reset
func (p PublishStatus) IsNone() bool { return p.kind == publishNone }

// PublishedID returns the id of the last successful publish
func (p PublishStatus) PublishedID() (string, bool) {
	return p.id, p.kind == publishOK
}

// Failure returns the message of the last failed publish
func (p PublishStatus) Failure() (string, bool) {
	return p.message, p.kind == publishFailed
}

func (p PublishStatus) String() string {
	switch p.kind {
	case publishOK:
		return "published:" + p.id
	case publishFailed:
		return "failed:" + p.message
	}
	return "none"
}

// State is the whole composer state
type State struct {
	Phase    Phase
	Draft    models.ComposerDraft
	Save     SaveStatus
	Publish  PublishStatus
	Restored bool
}

// InitialState is an idle composer with a blank draft
func InitialState() State {
	return State{Phase: PhaseIdle, Draft: models.BlankDraft(), Save: SaveIdle}
}

// Banner is the notice shown above the composer
type Banner string

const (
	BannerNone     Banner = ""
	BannerRevising Banner = "revising"
	BannerRestored Banner = "restored"
)

// Banner returns the notice for s. Revising an existing publication wins
// over a restored draft.
func (s State) Banner() Banner {
	if s.Draft.OriginPublicationID != "" {
		return BannerRevising
	}
	if s.Restored {
		return BannerRestored
	}
	return BannerNone
}

// Action is an input to Reduce
type Action interface {
	action()
}

type (
	// LoadDraft hydrates a persisted draft. HasContent is computed by the
	// loader; a blank draft never marks the state restored.
	LoadDraft struct {
		Draft      models.ComposerDraft
		HasContent bool
	}
	SetTitle     struct{ Title string }
	SetText      struct{ Text string }
	AddMedia     struct{ Item models.MediaItem }
	RemoveMedia  struct{ ID string }
	ReplaceDraft struct{ Draft models.ComposerDraft }
	Clear        struct{}
	PublishStart struct{}
	// PublishSuccess carries the id assigned by the backend
	PublishSuccess struct{ ID string }
	PublishError   struct{ Message string }
	SaveStart      struct{}
	SaveSuccess    struct{}
	SaveFailure    struct{}
)

func (LoadDraft) action()      {}
func (SetTitle) action()       {}
func (SetText) action()        {}
func (AddMedia) action()       {}
func (RemoveMedia) action()    {}
func (ReplaceDraft) action()   {}
func (Clear) action()          {}
func (PublishStart) action()   {}
func (PublishSuccess) action() {}
func (PublishError) action()   {}
func (SaveStart) action()      {}
func (SaveSuccess) action()    {}
func (SaveFailure) action()    {}

// Reduce returns the state after applying a to s. It never modifies s.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case LoadDraft:
		s.Phase = PhaseIdle
		s.Draft = normalize(a.Draft)
		s.Publish = PublishStatus{}
		s.Restored = a.HasContent && s.Draft.HasContent()
		return s

	case SetTitle:
		return edit(s, func(d *models.ComposerDraft) { d.Title = a.Title })

	case SetText:
		return edit(s, func(d *models.ComposerDraft) { d.Text = a.Text })

	case AddMedia:
		return edit(s, func(d *models.ComposerDraft) { d.Media = append(d.Media, a.Item) })

	case RemoveMedia:
		return edit(s, func(d *models.ComposerDraft) {
			kept := d.Media[:0]
			for _, m := range d.Media {
				if m.ID != a.ID {
					kept = append(kept, m)
				}
			}
			d.Media = kept
		})

	case ReplaceDraft:
		if s.Phase == PhasePublishing {
			return s
		}
		s.Phase = PhaseEditing
		s.Draft = normalize(a.Draft)
		s.Restored = false
		return s

	case Clear:
		return InitialState()

	case PublishStart:
		if s.Phase == PhasePublishing {
			return s
		}
		s.Phase = PhasePublishing
		s.Publish = PublishStatus{}
		return s

	case PublishSuccess:
		if s.Phase != PhasePublishing {
			return s
		}
		next := InitialState()
		next.Publish = Published(a.ID)
		return next

	case PublishError:
		if s.Phase != PhasePublishing {
			return s
		}
		s.Phase = PhaseIdle
		s.Publish = Failed(a.Message)
		return s

	case SaveStart:
		s.Save = SaveSaving
		return s

	case SaveSuccess:
		s.Save = SaveSaved
		return s

	case SaveFailure:
		s.Save = SaveError
		return s
	}
	return s
}

// edit applies a content mutation to a private copy of the draft. Edits
// are ignored while publishing.
func edit(s State, mutate func(d *models.ComposerDraft)) State {
	if s.Phase == PhasePublishing {
		return s
	}
	draft := s.Draft.Clone()
	mutate(&draft)
	s.Phase = PhaseEditing
	s.Draft = draft
	s.Save = SaveSaving
	s.Restored = false
	return s
}

func normalize(d models.ComposerDraft) models.ComposerDraft {
	out := d.Clone()
	if out.Media == nil {
		out.Media = []models.MediaItem{}
	}
	return out
}
