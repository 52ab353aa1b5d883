package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Output форматирует объекты Hookflow для терминала: списки — таблицей,
// одиночные workflow и execution — карточкой ключ/значение. В режиме
// --json любой объект выводится как есть.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        os.Stdout,
		errW:     os.Stderr,
	}
}

// Workflows выводит таблицу workflow вместе с путём хука каждого.
func (o *Output) Workflows(workflows []WorkflowResponse) {
	if o.jsonMode {
		o.JSON(workflows)
		return
	}

	tw := o.table()
	fmt.Fprintln(tw, "NAME\tHOOK\tACTIVE\tNODES\tID")
	for i := range workflows {
		wf := &workflows[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			wf.Name, hookPath(wf.Name), activeMark(wf.IsActive), graphNodeCount(wf.Graph), wf.ID)
	}
	tw.Flush()
}

// Workflow выводит карточку одного workflow.
func (o *Output) Workflow(wf *WorkflowResponse) {
	if o.jsonMode {
		o.JSON(wf)
		return
	}

	tw := o.table()
	fmt.Fprintf(tw, "ID:\t%s\n", wf.ID)
	fmt.Fprintf(tw, "Name:\t%s\n", wf.Name)
	fmt.Fprintf(tw, "Hook:\t%s\n", hookPath(wf.Name))
	fmt.Fprintf(tw, "Active:\t%s\n", activeMark(wf.IsActive))
	fmt.Fprintf(tw, "Nodes:\t%d\n", graphNodeCount(wf.Graph))
	fmt.Fprintf(tw, "Created:\t%s\n", wf.CreatedAt)
	fmt.Fprintf(tw, "Updated:\t%s\n", wf.UpdatedAt)
	tw.Flush()
}

// Executions выводит таблицу executions одного workflow.
func (o *Output) Executions(executions []ExecutionResponse) {
	if o.jsonMode {
		o.JSON(executions)
		return
	}

	tw := o.table()
	fmt.Fprintln(tw, "ID\tSTATUS\tNODES\tSTARTED\tFINISHED")
	for i := range executions {
		ex := &executions[i]
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			ex.ID, ex.Status, len(ex.ExecutedNodes), ex.StartedAt, ex.FinishedAt)
	}
	tw.Flush()
}

// Execution выводит карточку одного execution, включая порядок
// выполненных узлов и подробности ошибки, если она была.
func (o *Output) Execution(ex *ExecutionResponse) {
	if o.jsonMode {
		o.JSON(ex)
		return
	}

	tw := o.table()
	fmt.Fprintf(tw, "ID:\t%s\n", ex.ID)
	fmt.Fprintf(tw, "Workflow:\t%s\n", ex.WorkflowID)
	fmt.Fprintf(tw, "Status:\t%s\n", ex.Status)
	fmt.Fprintf(tw, "Nodes:\t%s\n", strings.Join(ex.ExecutedNodes, " -> "))
	fmt.Fprintf(tw, "Started:\t%s\n", ex.StartedAt)
	if ex.FinishedAt != "" {
		fmt.Fprintf(tw, "Finished:\t%s\n", ex.FinishedAt)
	}
	if ex.ErrorDetails != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", ex.ErrorDetails)
	}
	tw.Flush()
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

func (o *Output) table() *tabwriter.Writer {
	return tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
}

// hookPath — путь, по которому workflow принимает вебхуки.
func hookPath(name string) string {
	return "/api/v1/hooks/" + name
}

func activeMark(active bool) string {
	if active {
		return "yes"
	}
	return "no"
}

func graphNodeCount(graph map[string]any) int {
	nodes, _ := graph["nodes"].([]any)
	return len(nodes)
}
