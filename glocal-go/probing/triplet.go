package probing

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/thingslab/glocal/glocal-golib/errors"
)

// Triplet is an ordered triple of object ids. The stored convention puts the
// two objects judged most similar first, so the third member is the human
// odd-one-out choice; a probe reproduces that choice when the first pairing
// comes out as the most similar one.
type Triplet [3]int

// TripletStore holds the full odd-one-out triplet set over a fixed object
// universe and slices it into per-fold partitions.
type TripletStore struct {
	triplets []Triplet
	nObjects int
}

// NewTripletStore validates every member id against [0, nObjects) and fails
// with a DataIntegrityError on the first violation.
func NewTripletStore(triplets []Triplet, nObjects int) (*TripletStore, error) {
	for i, t := range triplets {
		for _, obj := range t {
			if obj < 0 || obj >= nObjects {
				return nil, dataErrorf("triplet %d references object %d outside [0, %d)", i, obj, nObjects)
			}
		}
	}
	return &TripletStore{triplets: triplets, nObjects: nObjects}, nil
}

// LoadTriplets reads whitespace-separated object-id triples, one per line.
func LoadTriplets(path string, nObjects int) (*TripletStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening triplet file")
	}
	defer f.Close()

	var triplets []Triplet
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, dataErrorf("triplet line %d has %d fields, want 3", len(triplets)+1, len(fields))
		}
		var t Triplet
		for i, field := range fields {
			val, err := strconv.Atoi(field)
			if err != nil {
				return nil, dataErrorf("triplet line %d: %v", len(triplets)+1, err)
			}
			t[i] = val
		}
		triplets = append(triplets, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "error reading triplet file")
	}
	return NewTripletStore(triplets, nObjects)
}

// Len returns the number of triplets in the store.
func (s *TripletStore) Len() int {
	return len(s.triplets)
}

// NumObjects returns the size of the object universe.
func (s *TripletStore) NumObjects() int {
	return s.nObjects
}

// TripletPartition is the per-fold slicing of the triplet set. Dropped counts
// the triplets whose members span both object sets; excluding them is what
// keeps train and validation disjoint at the object level.
type TripletPartition struct {
	Train   []Triplet
	Val     []Triplet
	Dropped int
}

// Partition classifies every triplet by the fold's train-object membership:
// all three members in trainObjects goes to Train, all three in the
// complement goes to Val, anything mixed is dropped. Train and validation
// objects partition the universe, so no triplet can fall outside both.
// Fails with a DataIntegrityError if either side ends up empty.
func (s *TripletStore) Partition(trainObjects []int) (TripletPartition, error) {
	inTrain := make([]bool, s.nObjects)
	for _, obj := range trainObjects {
		inTrain[obj] = true
	}

	var p TripletPartition
	for _, t := range s.triplets {
		members := 0
		for _, obj := range t {
			if inTrain[obj] {
				members++
			}
		}
		switch members {
		case 3:
			p.Train = append(p.Train, t)
		case 0:
			p.Val = append(p.Val, t)
		default:
			p.Dropped++
		}
	}
	if len(p.Train) == 0 {
		return TripletPartition{}, dataErrorf("fold produced zero train triplets")
	}
	if len(p.Val) == 0 {
		return TripletPartition{}, dataErrorf("fold produced zero validation triplets")
	}
	return p, nil
}
