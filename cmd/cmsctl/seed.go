package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"madajagad/internal/services"
	"madajagad/internal/storage"
)

func newSeedCommand(rt *runtime) *cobra.Command {
	var publish bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert starter content into empty tables",
		Long: "seed fills every empty content table with starter entries so a fresh\n" +
			"installation renders a complete landing page. Tables that already hold\n" +
			"rows are left untouched.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			c := rt.catalog
			if err := seedKind(ctx, out, c.Services, starterServices(), publish); err != nil {
				return err
			}
			if err := seedKind(ctx, out, c.Projects, starterProjects(), publish); err != nil {
				return err
			}
			if err := seedKind(ctx, out, c.Team, starterTeam(), publish); err != nil {
				return err
			}
			if err := seedKind(ctx, out, c.Testimonials, starterTestimonials(), publish); err != nil {
				return err
			}
			if err := seedKind(ctx, out, c.Organization, starterOrganization(), publish); err != nil {
				return err
			}
			return seedAbout(ctx, out, rt.about, publish)
		},
	}
	cmd.Flags().BoolVar(&publish, "publish", true, "Publish seeded entries immediately")
	return cmd
}

// seedKind 在表为空时按顺序写入示例内容。
func seedKind[T any, PT interface {
	*T
	services.Entity
}](ctx context.Context, out io.Writer, svc *services.ContentService[T, PT], rows []T, publish bool) error {
	total, _, err := svc.Counts(ctx)
	if err != nil {
		return err
	}
	if total > 0 {
		fmt.Fprintf(out, "%s: %d rows present, skipped\n", svc.Kind(), total)
		return nil
	}
	for i := range rows {
		PT(&rows[i]).GetMeta().IsPublished = publish
		if err := svc.Create(ctx, &rows[i]); err != nil {
			return fmt.Errorf("seed %s: %w", svc.Kind(), err)
		}
	}
	fmt.Fprintf(out, "%s: %d rows inserted\n", svc.Kind(), len(rows))
	return nil
}

func seedAbout(ctx context.Context, out io.Writer, about *services.AboutService, publish bool) error {
	_, _, revisions, err := about.Counts(ctx)
	if err != nil {
		return err
	}
	if revisions > 0 {
		fmt.Fprintf(out, "about: %d revisions present, skipped\n", revisions)
		return nil
	}
	subtitle := "Our Story"
	cur, err := about.Save(ctx, services.AboutInput{
		Title:    "About Us",
		Subtitle: &subtitle,
		Description: "PT Mada Jagad Mulia delivers civil, structural and environmental engineering " +
			"for public infrastructure and private developments across East Java.",
		Stats: map[string]any{"years": 15, "projects": 120, "engineers": 40},
	}, "")
	if err != nil {
		return fmt.Errorf("seed about: %w", err)
	}
	if publish && !cur.IsPublished {
		if _, err := about.TogglePublish(ctx); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "about: version %d saved\n", cur.Version)
	return nil
}

func starterServices() []storage.Service {
	return []storage.Service{
		{Title: "Civil Engineering", Description: "Roads, bridges and drainage designed for long service life.", Icon: "Building2"},
		{Title: "Environmental Consulting", Description: "Impact assessments and mitigation plans that keep projects compliant.", Icon: "Leaf", Color: "text-green-500", BgColor: "bg-green-500/10"},
		{Title: "Project Management", Description: "Scheduling, cost control and site supervision from tender to handover.", Icon: "ClipboardList"},
		{Title: "Structural Design", Description: "Analysis and detailing for concrete and steel structures.", Icon: "Ruler", Color: "text-orange-500", BgColor: "bg-orange-500/10"},
	}
}

func starterProjects() []storage.Project {
	return []storage.Project{
		{Title: "Bengawan Solo Riverbank Protection", Description: "Gabion and revetment works along 2.4 km of river edge.", Year: "2023", Location: "Bojonegoro", Tags: []string{"Civil", "Water"}},
		{Title: "Tulungrejo Village Road", Description: "Rigid pavement upgrade with new side drainage.", Year: "2022", Location: "Bojonegoro", Tags: []string{"Road"}},
		{Title: "Regional Hospital Annex", Description: "Three-storey reinforced concrete annex with seismic detailing.", Year: "2021", Location: "Tuban", Tags: []string{"Structural", "Building"}},
	}
}

func starterTeam() []storage.TeamMember {
	return []storage.TeamMember{
		{Name: "Budi Santoso", Position: "Managing Director"},
		{Name: "Siti Rahmawati", Position: "Lead Civil Engineer"},
		{Name: "Agus Prasetyo", Position: "Environmental Specialist"},
	}
}

func starterTestimonials() []storage.Testimonial {
	company := "Dinas PU Bojonegoro"
	return []storage.Testimonial{
		{Quote: "Delivered ahead of schedule with excellent site safety.", Author: "Hendra Wijaya", Role: "Head of Infrastructure", Company: &company},
		{Quote: "Clear reporting and a team that listens.", Author: "Dewi Lestari", Role: "Property Developer"},
	}
}

func starterOrganization() []storage.OrgMember {
	return []storage.OrgMember{
		{Name: "Budi Santoso", Position: "Managing Director", Level: services.OrgLevelTop},
		{Name: "Rina Kusuma", Position: "Finance Manager", Level: services.OrgLevelMiddle},
		{Name: "Siti Rahmawati", Position: "Engineering Manager", Level: services.OrgLevelMiddle},
		{Name: "Agus Prasetyo", Position: "Site Engineer", Level: services.OrgLevelStaff},
		{Name: "Yusuf Hidayat", Position: "Surveyor", Level: services.OrgLevelStaff},
	}
}
