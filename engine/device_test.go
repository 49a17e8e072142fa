package engine

import (
	"testing"

	"wurmple/optional"
	"wurmple/queues"

	. "github.com/onsi/gomega"
)

func completeFamilies(graphics, present uint32) queues.FamilyIndices {
	return queues.FamilyIndices{
		Graphics: optional.Of(graphics),
		Present:  optional.Of(present),
	}
}

func TestDeviceCandidateVerdict(t *testing.T) {
	good := deviceCandidate{
		name:         "good",
		families:     completeFamilies(0, 0),
		formats:      2,
		presentModes: 1,
	}

	tests := []struct {
		desc     string
		modify   func(c *deviceCandidate)
		suitable bool
	}{
		{"all requirements met", func(c *deviceCandidate) {}, true},
		{"split families", func(c *deviceCandidate) { c.families = completeFamilies(0, 1) }, true},
		{"no graphics", func(c *deviceCandidate) { c.families.Graphics.Reset() }, false},
		{"no present", func(c *deviceCandidate) { c.families.Present.Reset() }, false},
		{"missing swapchain", func(c *deviceCandidate) {
			c.missingExtensions = []string{"VK_KHR_swapchain"}
		}, false},
		{"no formats", func(c *deviceCandidate) { c.formats = 0 }, false},
		{"no present modes", func(c *deviceCandidate) { c.presentModes = 0 }, false},
	}

	for _, test := range tests {
		g := NewWithT(t)

		c := good
		test.modify(&c)

		g.Expect(c.suitable()).To(Equal(test.suitable), test.desc)
		if test.suitable {
			g.Expect(c.verdict()).To(BeEmpty(), test.desc)
		} else {
			g.Expect(c.verdict()).NotTo(BeEmpty(), test.desc)
		}
	}
}

func TestFirstSuitableKeepsEnumerationOrder(t *testing.T) {
	g := NewWithT(t)

	bad := deviceCandidate{name: "bad"}
	good := deviceCandidate{
		families:     completeFamilies(1, 1),
		formats:      1,
		presentModes: 1,
	}

	first, second := good, good
	first.name, second.name = "first", "second"

	g.Expect(firstSuitable(nil)).To(Equal(-1))
	g.Expect(firstSuitable([]deviceCandidate{bad, bad})).To(Equal(-1))
	g.Expect(firstSuitable([]deviceCandidate{bad, first, second})).To(Equal(1))
	g.Expect(firstSuitable([]deviceCandidate{second, first})).To(Equal(0))
}

func TestMissingNames(t *testing.T) {
	g := NewWithT(t)

	available := []string{"VK_KHR_swapchain", "VK_KHR_maintenance1"}

	g.Expect(missingNames([]string{"VK_KHR_swapchain\x00"}, available)).To(BeEmpty())
	g.Expect(missingNames(
		[]string{"VK_KHR_swapchain\x00", "VK_EXT_other\x00"},
		available,
	)).To(Equal([]string{"VK_EXT_other"}))
	g.Expect(missingNames(deviceExtensions, nil)).To(HaveLen(1))
}

func TestSafeString(t *testing.T) {
	g := NewWithT(t)

	g.Expect(safeString("name")).To(Equal("name\x00"))
	g.Expect(safeString("name\x00")).To(Equal("name\x00"))
	g.Expect(safeString("")).To(Equal("\x00"))
}
