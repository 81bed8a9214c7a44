// Package tracker implements Trackers, which track and save scalar
// metrics in an experiment
package tracker

import (
	"encoding/gob"
	"fmt"
	"os"
	"sort"
)

// Interface Tracker keeps track of experiment data and saves the data
// after the experiment has finished
type Tracker interface {
	Track(tag string, value float64, iter int)
	Save() error
}

// Point is a single tracked value
type Point struct {
	Iter  int
	Value float64
}

// Scalars tracks series of scalar values by tag. It also implements
// the metric logger of the VAE, so that the losses of the VAE are
// tracked alongside those of the policy.
type Scalars struct {
	series   map[string][]Point
	filename string
}

// NewScalars returns a new Scalars which will save its data at the
// specified location filename
func NewScalars(filename string) *Scalars {
	return &Scalars{
		series:   make(map[string][]Point),
		filename: filename,
	}
}

// Track caches value as the value of tag at iteration iter
func (s *Scalars) Track(tag string, value float64, iter int) {
	s.series[tag] = append(s.series[tag], Point{Iter: iter, Value: value})
}

// Add is equivalent to Track
func (s *Scalars) Add(tag string, value float64, iter int) {
	s.Track(tag, value, iter)
}

// Series returns the values tracked for tag
func (s *Scalars) Series(tag string) []Point {
	return append([]Point(nil), s.series[tag]...)
}

// Tags returns the sorted tags of all tracked series
func (s *Scalars) Tags() []string {
	tags := make([]string, 0, len(s.series))
	for tag := range s.series {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Save saves the data tracked by the Scalars Tracker to disk.
func (s *Scalars) Save() error {
	// Open the file to save to
	file, err := os.Create(s.filename)
	if err != nil {
		return fmt.Errorf("save: could not open save file: %v", err)
	}
	defer file.Close()

	// Encode and save the file
	en := gob.NewEncoder(file)
	if err = en.Encode(s.series); err != nil {
		return fmt.Errorf("save: could not encode data: %v", err)
	}
	return nil
}

// LoadData loads and returns the data saved by a Scalars Tracker
func LoadData(filename string) (map[string][]Point, error) {
	// Open file
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("loaddata: could not open data file: %v", err)
	}
	defer file.Close()

	// Create the decoder and the variable to store the data in
	dec := gob.NewDecoder(file)
	var data map[string][]Point

	// Decode the data
	err = dec.Decode(&data)
	if err != nil {
		return nil, fmt.Errorf("loaddata: could not decode data: %v", err)
	}

	return data, nil
}
