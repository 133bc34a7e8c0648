package inference

// Label is a tumor class emitted by the classifier.
type Label string

const (
	Glioma     Label = "glioma"
	Meningioma Label = "meningioma"
	NoTumor    Label = "notumor"
	Pituitary  Label = "pituitary"
)

// Labels lists the classes in the order the model was trained to emit them.
// Index i of the output vector is the probability of Labels[i].
var Labels = [...]Label{Glioma, Meningioma, NoTumor, Pituitary}

// Valid reports whether l is one of Labels.
func (l Label) Valid() bool {
	for _, known := range Labels {
		if l == known {
			return true
		}
	}
	return false
}

func (l Label) String() string { return string(l) }
