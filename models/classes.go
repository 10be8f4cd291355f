// Package models - Label sets and the model registry.
package models

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/nvr-ai/go-detect/models/model"
	"github.com/pkg/errors"
)

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// OutputClassSet ties a model family to its full list of labels.
type OutputClassSet struct {
	// Family identifier.
	Family model.Family
	// Classes are indexed from zero in model output order.
	Classes []OutputClass
}

// Names returns the labels in class order.
func (s OutputClassSet) Names() []string {
	names := make([]string, len(s.Classes))
	for _, c := range s.Classes {
		names[c.Index] = c.Name
	}
	return names
}

// COCOClasses is the 80 COCO classes as indexed by darknet YOLO models.
var COCOClasses = OutputClassSet{
	Family: model.ModelFamilyCOCO,
	Classes: []OutputClass{
		{0, "person"},
		{1, "bicycle"},
		{2, "car"},
		{3, "motorcycle"},
		{4, "airplane"},
		{5, "bus"},
		{6, "train"},
		{7, "truck"},
		{8, "boat"},
		{9, "traffic light"},
		{10, "fire hydrant"},
		{11, "stop sign"},
		{12, "parking meter"},
		{13, "bench"},
		{14, "bird"},
		{15, "cat"},
		{16, "dog"},
		{17, "horse"},
		{18, "sheep"},
		{19, "cow"},
		{20, "elephant"},
		{21, "bear"},
		{22, "zebra"},
		{23, "giraffe"},
		{24, "backpack"},
		{25, "umbrella"},
		{26, "handbag"},
		{27, "tie"},
		{28, "suitcase"},
		{29, "frisbee"},
		{30, "skis"},
		{31, "snowboard"},
		{32, "sports ball"},
		{33, "kite"},
		{34, "baseball bat"},
		{35, "baseball glove"},
		{36, "skateboard"},
		{37, "surfboard"},
		{38, "tennis racket"},
		{39, "bottle"},
		{40, "wine glass"},
		{41, "cup"},
		{42, "fork"},
		{43, "knife"},
		{44, "spoon"},
		{45, "bowl"},
		{46, "banana"},
		{47, "apple"},
		{48, "sandwich"},
		{49, "orange"},
		{50, "broccoli"},
		{51, "carrot"},
		{52, "hot dog"},
		{53, "pizza"},
		{54, "donut"},
		{55, "cake"},
		{56, "chair"},
		{57, "couch"},
		{58, "potted plant"},
		{59, "bed"},
		{60, "dining table"},
		{61, "toilet"},
		{62, "tv"},
		{63, "laptop"},
		{64, "mouse"},
		{65, "remote"},
		{66, "keyboard"},
		{67, "cell phone"},
		{68, "microwave"},
		{69, "oven"},
		{70, "toaster"},
		{71, "sink"},
		{72, "refrigerator"},
		{73, "book"},
		{74, "clock"},
		{75, "vase"},
		{76, "scissors"},
		{77, "teddy bear"},
		{78, "hair drier"},
		{79, "toothbrush"},
	},
}

// PascalVOCClasses is the 20 Pascal VOC classes, zero-based.
var PascalVOCClasses = OutputClassSet{
	Family: model.ModelFamilyVOC,
	Classes: []OutputClass{
		{0, "aeroplane"},
		{1, "bicycle"},
		{2, "bird"},
		{3, "boat"},
		{4, "bottle"},
		{5, "bus"},
		{6, "car"},
		{7, "cat"},
		{8, "chair"},
		{9, "cow"},
		{10, "diningtable"},
		{11, "dog"},
		{12, "horse"},
		{13, "motorbike"},
		{14, "person"},
		{15, "pottedplant"},
		{16, "sheep"},
		{17, "sofa"},
		{18, "train"},
		{19, "tvmonitor"},
	},
}

// AllClassSets collects every built-in OutputClassSet.
var AllClassSets = []OutputClassSet{
	COCOClasses,
	PascalVOCClasses,
}

// LookupLabels returns the built-in labels of a family.
func LookupLabels(family model.Family) ([]string, error) {
	for _, set := range AllClassSets {
		if set.Family == family {
			return set.Names(), nil
		}
	}
	return nil, errors.Errorf("no built-in labels for family %q", family)
}

// ParseLabels reads one label per line. Surrounding whitespace is trimmed and blank
// lines after the last label are ignored; a blank line in the middle is an error
// because it would shift every following class index.
func ParseLabels(r io.Reader) ([]string, error) {
	var labels []string
	blank := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			blank++
			continue
		}
		if blank > 0 && len(labels) > 0 {
			return nil, errors.Errorf("blank label before line %d", len(labels)+blank+1)
		}
		blank = 0
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read labels")
	}
	if len(labels) == 0 {
		return nil, errors.New("labels file is empty")
	}

	return labels, nil
}

// LoadLabels reads a labels file.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open labels file")
	}
	defer f.Close()

	labels, err := ParseLabels(f)
	if err != nil {
		return nil, errors.Wrapf(err, "labels file %s", path)
	}
	return labels, nil
}
