package prompt

// Templates for the built-in analysis tasks.
var (
	ESGScore = Template{
		Task: "esg-score",
		Instruction: "Evaluate the publicly known ESG (environmental, social and governance) efforts of the company \"" +
			DirectivePlaceholder + "\" and score them.",
		Shape: `{"company_name": string, "esg_score": number from 1 to 100, "summary": string of about 100 characters, ` +
			`"key_initiatives": array of the three main initiatives as strings}`,
	}

	FormatJSON = Template{
		Task:          "format-json",
		Instruction:   "Analyze the text below and output it as JSON following this schema instruction: " + DirectivePlaceholder,
		DocumentLabel: "Text",
	}

	TextToJSON = Template{
		Task:          "text-to-json",
		Instruction:   "Extract information from the text below and output it as JSON following the user's instruction: " + DirectivePlaceholder,
		DocumentLabel: "Text",
	}

	WebExtract = Template{
		Task:          "web-extract",
		Instruction:   "From the web page text below, extract the information the user asked for: " + DirectivePlaceholder,
		DocumentLabel: "Web page text",
	}

	ConditionCheck = Template{
		Task:          "condition-check",
		Instruction:   "Read the web page text below and decide whether this condition is currently met: " + DirectivePlaceholder,
		Shape:         `{"condition_met": true or false, "current_status": the current price or status found on the page, "reason": why}`,
		DocumentLabel: "Web page text",
	}

	NicheSummary = Template{
		Task:          "niche-data",
		Instruction:   "Summarize the recent news headlines below about \"" + DirectivePlaceholder + "\" and identify the key trends.",
		Shape:         `{"summary": string, "key_trends": array of strings}`,
		DocumentLabel: "Headlines",
	}
)
