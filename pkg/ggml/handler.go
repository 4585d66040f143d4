package ggml

// Control is the result of a handler hook: either continue the traversal
// or stop it, carrying a caller-defined payload back through Load.
type Control[T any] struct {
	stop    bool
	payload T
}

// Continue lets the traversal proceed.
func Continue[T any]() Control[T] {
	return Control[T]{}
}

// Stop aborts the traversal; Load returns a *CancelledError[T] wrapping
// the payload and reads no further bytes.
func Stop[T any](payload T) Control[T] {
	return Control[T]{stop: true, payload: payload}
}

// Stopped reports whether the hook asked to stop.
func (c Control[T]) Stopped() bool {
	return c.stop
}

// PartialHyperparameters is the one slice of the hyperparameter record
// the engine itself needs; everything else in that region is opaque and
// belongs to the handler.
type PartialHyperparameters struct {
	NVocab int
}

// Handler is the capability set a caller implements to drive a
// traversal. Embed BaseHandler to pick up no-op implementations of every
// hook except Hyperparameters, which has no sensible default.
type Handler[T any] interface {
	// ContainerRevision is called once, before any other data is read,
	// so revision-specific behaviour can be configured up-front.
	ContainerRevision(rev ContainerRevision) Control[T]

	// Hyperparameters must consume exactly the hyperparameter region
	// from r and return at least the vocabulary size.
	Hyperparameters(r *Reader) (PartialHyperparameters, Control[T])

	// VocabToken is called once per vocabulary entry, in on-disk order.
	// For unversioned containers score is always 0.
	VocabToken(index int, token []byte, score float32) Control[T]

	// MultipartMarker is called once before tensor data for the GGML and
	// GGMF revisions. Multi-file checkpoints are not supported by the
	// engine; a handler wanting them must stop here and take over r.
	MultipartMarker(r *Reader) Control[T]

	// TensorBuffer is called once per tensor descriptor. Return a nil
	// buffer to skip the tensor's data, or a buffer of exactly
	// info.DataSize() bytes to receive it. The engine owns the buffer
	// only for the duration of the copy.
	TensorBuffer(info TensorInfo) ([]byte, Control[T])
}

// BaseHandler is a no-op implementation of every optional Handler hook.
type BaseHandler[T any] struct{}

func (BaseHandler[T]) ContainerRevision(ContainerRevision) Control[T] {
	return Continue[T]()
}

func (BaseHandler[T]) VocabToken(int, []byte, float32) Control[T] {
	return Continue[T]()
}

func (BaseHandler[T]) MultipartMarker(*Reader) Control[T] {
	return Continue[T]()
}

func (BaseHandler[T]) TensorBuffer(TensorInfo) ([]byte, Control[T]) {
	return nil, Continue[T]()
}
