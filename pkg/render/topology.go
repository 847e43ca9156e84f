package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/teslashibe/go-faceoverlay/pkg/inference"
)

// Connection is an edge between two landmark indices.
type Connection struct {
	From, To int
}

// Topology is a fixed graph of landmark edges.
type Topology []Connection

// MaxIndex returns the largest landmark index referenced, or -1 when empty.
func (t Topology) MaxIndex() int {
	m := -1
	for _, c := range t {
		m = max(m, c.From, c.To)
	}
	return m
}

// Concat joins topologies.
func Concat(parts ...Topology) Topology {
	var out Topology
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Contours of the 468-point face mesh.
var (
	FaceOval = Topology{
		{10, 338}, {338, 297}, {297, 332}, {332, 284}, {284, 251}, {251, 389},
		{389, 356}, {356, 454}, {454, 323}, {323, 361}, {361, 288}, {288, 397},
		{397, 365}, {365, 379}, {379, 378}, {378, 400}, {400, 377}, {377, 152},
		{152, 148}, {148, 176}, {176, 149}, {149, 150}, {150, 136}, {136, 172},
		{172, 58}, {58, 132}, {132, 93}, {93, 234}, {234, 127}, {127, 162},
		{162, 21}, {21, 54}, {54, 103}, {103, 67}, {67, 109}, {109, 10},
	}

	Lips = Topology{
		{61, 146}, {146, 91}, {91, 181}, {181, 84}, {84, 17}, {17, 314},
		{314, 405}, {405, 321}, {321, 375}, {375, 291}, {61, 185}, {185, 40},
		{40, 39}, {39, 37}, {37, 0}, {0, 267}, {267, 269}, {269, 270},
		{270, 409}, {409, 291}, {78, 95}, {95, 88}, {88, 178}, {178, 87},
		{87, 14}, {14, 317}, {317, 402}, {402, 318}, {318, 324}, {324, 308},
		{78, 191}, {191, 80}, {80, 81}, {81, 82}, {82, 13}, {13, 312},
		{312, 311}, {311, 310}, {310, 415}, {415, 308},
	}

	LeftEye = Topology{
		{263, 249}, {249, 390}, {390, 373}, {373, 374}, {374, 380}, {380, 381},
		{381, 382}, {382, 362}, {263, 466}, {466, 388}, {388, 387}, {387, 386},
		{386, 385}, {385, 384}, {384, 398}, {398, 362},
	}

	LeftEyebrow = Topology{
		{276, 283}, {283, 282}, {282, 295}, {295, 285}, {300, 293}, {293, 334},
		{334, 296}, {296, 336},
	}

	RightEye = Topology{
		{33, 7}, {7, 163}, {163, 144}, {144, 145}, {145, 153}, {153, 154},
		{154, 155}, {155, 133}, {33, 246}, {246, 161}, {161, 160}, {160, 159},
		{159, 158}, {158, 157}, {157, 173}, {173, 133},
	}

	RightEyebrow = Topology{
		{46, 53}, {53, 52}, {52, 65}, {65, 55}, {70, 63}, {63, 105},
		{105, 66}, {66, 107},
	}

	// FaceMeshContours outlines the face, lips, eyes and eyebrows.
	FaceMeshContours = Concat(FaceOval, Lips, LeftEye, LeftEyebrow, RightEye, RightEyebrow)
)

// FivePointTopology connects the five key points reported by YuNet, in its
// order: right eye, left eye, nose tip, right mouth corner, left mouth
// corner.
var FivePointTopology = Topology{
	{0, 1},         // eyes
	{0, 2}, {1, 2}, // eyes to nose
	{2, 3}, {2, 4}, // nose to mouth
	{3, 4},         // mouth
}

// FaceMeshLandmarks is the size of a full face mesh. Refined meshes append
// iris points after it.
const FaceMeshLandmarks = 468

// Named topologies accepted by ResolveTopology.
const (
	TopologyTessellation = "tessellation"
	TopologyContours     = "contours"
)

// ForFace picks the topology for one face: the dense tessellation of a full
// face mesh, or the five-point graph for detector key points.
func ForFace(face inference.LandmarkSet) Topology {
	if len(face) >= FaceMeshLandmarks {
		return Tessellate(face[:FaceMeshLandmarks])
	}
	return FivePointTopology
}

// LoadTopology reads a topology written as a JSON array of index pairs,
// such as [[127,34],[34,139]].
func LoadTopology(r io.Reader) (Topology, error) {
	var pairs [][2]int
	if err := json.NewDecoder(r).Decode(&pairs); err != nil {
		return nil, fmt.Errorf("decode topology: %w", err)
	}
	t := make(Topology, 0, len(pairs))
	for _, p := range pairs {
		if p[0] < 0 || p[1] < 0 {
			return nil, fmt.Errorf("%w: negative index in edge %d-%d", ErrMalformed, p[0], p[1])
		}
		t = append(t, Connection{From: p[0], To: p[1]})
	}
	return t, nil
}

// ResolveTopology maps a configured topology to the renderer's. The
// tessellation is computed per face and resolves to nil; any other name
// than the built-ins is read as a JSON file.
func ResolveTopology(name string) (Topology, error) {
	switch name {
	case "", TopologyTessellation:
		return nil, nil
	case TopologyContours:
		return FaceMeshContours, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadTopology(f)
}
