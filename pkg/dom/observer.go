package dom

import "golang.org/x/net/html"

// MutationKind classifies a mutation record.
type MutationKind int

const (
	// ChildList records nodes added to or removed from Target.
	ChildList MutationKind = iota + 1
	// CharacterData records a change to the content of the text node Target.
	CharacterData
)

func (k MutationKind) String() string {
	switch k {
	case ChildList:
		return "childList"
	case CharacterData:
		return "characterData"
	default:
		return "unknown"
	}
}

// Mutation describes one change to the tree.
type Mutation struct {
	Kind    MutationKind
	Target  *html.Node
	Added   []*html.Node
	Removed []*html.Node
}

// Observer receives batches of mutation records for one subtree. Records are
// delivered asynchronously on the document's loop.
type Observer struct {
	doc          *Document
	root         *html.Node
	fn           func([]Mutation)
	pending      []Mutation
	scheduled    bool
	disconnected bool
}

// Observe watches the subtree rooted at root.
func (d *Document) Observe(root *html.Node, fn func([]Mutation)) *Observer {
	o := &Observer{doc: d, root: root, fn: fn}
	d.observers = append(d.observers, o)
	return o
}

// ObserverCount returns the number of connected observers.
func (d *Document) ObserverCount() int { return len(d.observers) }

// Root returns the observed subtree root.
func (o *Observer) Root() *html.Node { return o.root }

// Disconnect stops delivery, dropping any records not yet delivered.
func (o *Observer) Disconnect() {
	if o.disconnected {
		return
	}
	o.disconnected = true
	o.pending = nil

	obs := o.doc.observers[:0]
	for _, other := range o.doc.observers {
		if other != o {
			obs = append(obs, other)
		}
	}
	o.doc.observers = obs
}

func (o *Observer) enqueue(m Mutation) {
	o.pending = append(o.pending, m)
	if o.scheduled {
		return
	}
	o.scheduled = true
	o.doc.loop.Post(o.deliver)
}

func (o *Observer) deliver() {
	o.scheduled = false
	if o.disconnected || len(o.pending) == 0 {
		return
	}
	records := o.pending
	o.pending = nil
	o.fn(records)
}

func (d *Document) notify(m Mutation) {
	for _, o := range d.observers {
		if Contains(o.root, m.Target) {
			o.enqueue(m)
		}
	}
}

type visibilityWatch struct {
	fn        func()
	cancelled bool
}

// ObserveVisibility calls fn once el is visible. Without deferred visibility
// every element counts as visible and fn is posted right away. The returned
// func cancels the watch.
func (d *Document) ObserveVisibility(el *html.Node, fn func()) (cancel func()) {
	w := &visibilityWatch{fn: fn}
	if !d.deferVisibility {
		d.loop.Post(func() {
			if !w.cancelled {
				w.fn()
			}
		})
		return func() { w.cancelled = true }
	}
	d.visibility[el] = append(d.visibility[el], w)
	return func() { w.cancelled = true }
}

// Reveal marks el visible, firing its pending visibility watches.
func (d *Document) Reveal(el *html.Node) {
	watches := d.visibility[el]
	delete(d.visibility, el)
	for _, w := range watches {
		if !w.cancelled {
			d.loop.Post(w.fn)
		}
	}
}
