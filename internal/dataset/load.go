package dataset

import (
	"fmt"
	"path/filepath"

	"github.com/banshee-data/pose.report/internal/fsutil"
	"github.com/banshee-data/pose.report/internal/pose"
	"github.com/banshee-data/pose.report/internal/security"
)

// Source describes an estimator export on disk. Each object contributes
// three files, all little-endian NPY arrays:
//
//	{Name}_gt_poses_{id}.npy    (N, 4, 4)   ground-truth poses
//	{Name}_out_poses_{id}.npy   (N, M, 4, 4) hypothesis poses, rank order
//	{Name}_out_scores_{id}.npy  (N, M)      hypothesis confidence scores
//
// Poses are homogeneous 4x4 matrices; the rotation is the upper-left 3x3
// block and the translation the first three entries of the last column.
type Source struct {
	Dir       string
	Name      string
	ObjectIDs []int

	// TopHypotheses keeps only the first k hypotheses per observation.
	// Zero or negative keeps everything.
	TopHypotheses int

	// FS overrides where the NPY files are read from. Nil means the real
	// filesystem; tests feed synthetic exports through a memory one.
	FS fsutil.FileSystem
}

func (s Source) gtPath(id int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s_gt_poses_%d.npy", s.Name, id))
}

func (s Source) outPath(id int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s_out_poses_%d.npy", s.Name, id))
}

func (s Source) scoresPath(id int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s_out_scores_%d.npy", s.Name, id))
}

// readArray reads and parses one NPY file of the source. Dataset names can
// arrive over the API, so paths assembled from them must stay inside the
// data directory; injected filesystems are trusted fixtures and skip the
// check.
func (s Source) readArray(path string) ([]float64, []int, error) {
	fs := s.FS
	if fs == nil {
		if err := security.ValidatePathWithinDirectory(path, s.Dir); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		fs = fsutil.OSFileSystem{}
	}
	raw, err := fs.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read npy: %w", err)
	}
	data, shape, err := ReadNPY(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, shape, nil
}

// Load reads every object of the source and concatenates the observations
// in object order. SampleID numbers the concatenated dataset from zero;
// ImageID restarts per object. Every observation is validated on the way
// in, so downstream code can assume finite, orthonormal poses.
func Load(src Source) ([]Observation, error) {
	if len(src.ObjectIDs) == 0 {
		return nil, fmt.Errorf("%w: no object ids given", ErrInvalidInput)
	}

	var all []Observation
	for _, id := range src.ObjectIDs {
		obs, err := loadObject(src, id)
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", id, err)
		}
		for i := range obs {
			obs[i].SampleID = len(all) + i
		}
		all = append(all, obs...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: source %s/%s holds no observations", ErrInvalidInput, src.Dir, src.Name)
	}
	return all, nil
}

func loadObject(src Source, id int) ([]Observation, error) {
	gt, gtShape, err := src.readArray(src.gtPath(id))
	if err != nil {
		return nil, err
	}
	if len(gtShape) != 3 || gtShape[1] != 4 || gtShape[2] != 4 {
		return nil, fmt.Errorf("%w: gt poses have shape %v, want (N, 4, 4)", ErrInvalidInput, gtShape)
	}
	n := gtShape[0]

	out, outShape, err := src.readArray(src.outPath(id))
	if err != nil {
		return nil, err
	}
	if len(outShape) != 4 || outShape[0] != n || outShape[2] != 4 || outShape[3] != 4 {
		return nil, fmt.Errorf("%w: hypothesis poses have shape %v, want (%d, M, 4, 4)", ErrInvalidInput, outShape, n)
	}
	m := outShape[1]

	scores, scoresShape, err := src.readArray(src.scoresPath(id))
	if err != nil {
		return nil, err
	}
	if len(scoresShape) != 2 || scoresShape[0] != n || scoresShape[1] != m {
		return nil, fmt.Errorf("%w: scores have shape %v, want (%d, %d)", ErrInvalidInput, scoresShape, n, m)
	}

	keep := m
	if src.TopHypotheses > 0 && src.TopHypotheses < m {
		keep = src.TopHypotheses
	}

	obs := make([]Observation, n)
	for i := 0; i < n; i++ {
		gtR, gtT := poseFromMatrix(gt[i*16:])
		hyp := HypothesisSet{
			Rotations:    make([]pose.Rotation, keep),
			Translations: make([]pose.Vec3, keep),
			Scores:       make([]float64, keep),
		}
		for j := 0; j < keep; j++ {
			hyp.Rotations[j], hyp.Translations[j] = poseFromMatrix(out[(i*m+j)*16:])
			hyp.Scores[j] = scores[i*m+j]
		}
		obs[i] = Observation{
			ObjectID:      id,
			ImageID:       i,
			GTRotation:    gtR,
			GTTranslation: gtT,
			Hypotheses:    hyp,
		}
		if err := obs[i].Validate(); err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
	}
	return obs, nil
}

// poseFromMatrix splits one row-major 4x4 homogeneous matrix into its
// rotation block and translation column. The caller guarantees at least
// 16 elements.
func poseFromMatrix(flat []float64) (pose.Rotation, pose.Vec3) {
	var r pose.Rotation
	var t pose.Vec3
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			r[row*3+col] = flat[row*4+col]
		}
		t[row] = flat[row*4+3]
	}
	return r, t
}
