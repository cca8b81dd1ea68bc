package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/trafikkvakt/core"
	"github.com/trezcool/trafikkvakt/core/duty"
)

type seedFile struct {
	Children  []string `yaml:"children"`
	Crossings []struct {
		Name           string `yaml:"name"`
		GoogleMapsLink string `yaml:"googleMapsLink"`
	} `yaml:"crossings"`
	Schedule *struct {
		StartDate  string `yaml:"startDate"`
		EndDate    string `yaml:"endDate"`
		WeekNumber int    `yaml:"weekNumber"`
		Year       int    `yaml:"year"`
	} `yaml:"schedule"`
}

// seed loads the children, crossings and schedule of a YAML file into the store.
// Sections missing from the file are left untouched.
func (cli *commandLine) seed(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading seed file")
	}
	var data seedFile
	if err = yaml.Unmarshal(raw, &data); err != nil {
		return errors.Wrap(err, "parsing seed file")
	}

	validate, _ := core.NewValidator()
	ctx := context.Background()

	if data.Children != nil {
		children := duty.Children{Children: data.Children}
		if err = children.Validate(validate); err != nil {
			return errors.Wrap(err, "invalid children")
		}
		if err = cli.repo.SaveChildren(ctx, children); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "%d children saved\n", len(children.Children))
	}

	if data.Crossings != nil {
		crossings := duty.Crossings{Crossings: make([]duty.Crossing, len(data.Crossings))}
		for i, c := range data.Crossings {
			crossings.Crossings[i] = duty.Crossing{Name: c.Name, GoogleMapsLink: c.GoogleMapsLink}
		}
		if err = crossings.Validate(validate); err != nil {
			return errors.Wrap(err, "invalid crossings")
		}
		if err = cli.repo.SaveCrossings(ctx, crossings); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "%d crossings saved\n", len(crossings.Crossings))
	}

	if data.Schedule != nil {
		schedule := duty.Schedule{
			StartDate:  data.Schedule.StartDate,
			EndDate:    data.Schedule.EndDate,
			WeekNumber: data.Schedule.WeekNumber,
			Year:       data.Schedule.Year,
		}
		if err = schedule.Validate(validate); err != nil {
			return errors.Wrap(err, "invalid schedule")
		}
		if err = cli.repo.SaveSchedule(ctx, schedule); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "schedule saved: week %d, %d\n", schedule.WeekNumber, schedule.Year)
	}
	return nil
}
