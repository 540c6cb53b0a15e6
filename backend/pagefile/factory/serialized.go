// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package factory

import (
	"fmt"

	"github.com/Fantom-foundation/pagestore/backend/page"
	"github.com/Fantom-foundation/pagestore/backend/pagefile"
	"github.com/Fantom-foundation/pagestore/common"
)

// serialized adapts a page file of serializable pages to a page type known
// to be serializable only at run time.
type serialized[P page.Page] struct {
	nested pagefile.PageFile[page.Serializable]
}

func toSerializable[P page.Page](p P) (page.Serializable, error) {
	res, ok := any(p).(page.Serializable)
	if !ok {
		return nil, fmt.Errorf("%w: page of type %T is not serializable", UnsupportedConfiguration, p)
	}
	return res, nil
}

func (s *serialized[P]) Initialize(header page.Header) (bool, error) {
	return s.nested.Initialize(header)
}

func (s *serialized[P]) SetPageID(p P) (page.ID, error) {
	sp, err := toSerializable(p)
	if err != nil {
		return page.NoID, err
	}
	return s.nested.SetPageID(sp)
}

func (s *serialized[P]) WritePage(p P) (page.ID, error) {
	sp, err := toSerializable(p)
	if err != nil {
		return page.NoID, err
	}
	return s.nested.WritePage(sp)
}

func (s *serialized[P]) ReadPage(id page.ID) (P, bool, error) {
	var none P
	sp, found, err := s.nested.ReadPage(id)
	if err != nil || !found {
		return none, found, err
	}
	res, ok := sp.(P)
	if !ok {
		return none, false, fmt.Errorf("%w: decoded page of type %T", UnsupportedConfiguration, sp)
	}
	return res, true, nil
}

func (s *serialized[P]) DeletePage(id page.ID) error {
	return s.nested.DeletePage(id)
}

func (s *serialized[P]) NextPageID() page.ID {
	return s.nested.NextPageID()
}

func (s *serialized[P]) SetNextPageID(id page.ID) error {
	return s.nested.SetNextPageID(id)
}

func (s *serialized[P]) PageSize() int {
	return s.nested.PageSize()
}

func (s *serialized[P]) Clear() error {
	return s.nested.Clear()
}

func (s *serialized[P]) LogStatistics() {
	s.nested.LogStatistics()
}

func (s *serialized[P]) GetMemoryFootprint() *common.MemoryFootprint {
	return s.nested.GetMemoryFootprint()
}

func (s *serialized[P]) Flush() error {
	return s.nested.Flush()
}

func (s *serialized[P]) Close() error {
	return s.nested.Close()
}
